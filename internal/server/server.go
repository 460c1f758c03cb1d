package server

import (
	"log"
	"net/http"
	"strings"
	"time"

	"anoa.com/studentrecords/internal/access"
	"anoa.com/studentrecords/internal/config"
	"anoa.com/studentrecords/internal/middleware"
	"anoa.com/studentrecords/pkg/database"
	"anoa.com/studentrecords/pkg/storage"

	announcementHttp "anoa.com/studentrecords/internal/modules/announcement/delivery/http"
	announcementRepo "anoa.com/studentrecords/internal/modules/announcement/repository"
	announcementService "anoa.com/studentrecords/internal/modules/announcement/service"

	auditHttp "anoa.com/studentrecords/internal/modules/audit/delivery/http"
	auditRepo "anoa.com/studentrecords/internal/modules/audit/repository"
	auditService "anoa.com/studentrecords/internal/modules/audit/service"

	authHttp "anoa.com/studentrecords/internal/modules/auth/delivery/http"
	authRepo "anoa.com/studentrecords/internal/modules/auth/repository"
	authService "anoa.com/studentrecords/internal/modules/auth/service"

	dashboardHttp "anoa.com/studentrecords/internal/modules/dashboard/delivery/http"
	dashboardService "anoa.com/studentrecords/internal/modules/dashboard/service"

	editHttp "anoa.com/studentrecords/internal/modules/editrequest/delivery/http"
	editRepo "anoa.com/studentrecords/internal/modules/editrequest/repository"
	editService "anoa.com/studentrecords/internal/modules/editrequest/service"

	notiHttp "anoa.com/studentrecords/internal/modules/notification/delivery/http"
	notifRepo "anoa.com/studentrecords/internal/modules/notification/repository"
	notifService "anoa.com/studentrecords/internal/modules/notification/service"

	permHttp "anoa.com/studentrecords/internal/modules/permission/delivery/http"
	permRepo "anoa.com/studentrecords/internal/modules/permission/repository"
	permService "anoa.com/studentrecords/internal/modules/permission/service"

	searchService "anoa.com/studentrecords/internal/modules/search/service"

	studentHttp "anoa.com/studentrecords/internal/modules/student/delivery/http"
	studentRepo "anoa.com/studentrecords/internal/modules/student/repository"
	studentService "anoa.com/studentrecords/internal/modules/student/service"

	userHttp "anoa.com/studentrecords/internal/modules/user/delivery/http"
	userRepo "anoa.com/studentrecords/internal/modules/user/repository"
	userService "anoa.com/studentrecords/internal/modules/user/service"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/meilisearch/meilisearch-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Server struct {
	engine      *gin.Engine
	db          *gorm.DB
	redisClient *redis.Client
}

// NewServer wires every module. redisClient may be nil; live notifications and
// token revocation are then disabled.
func NewServer(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) *Server {
	transactor := database.NewTransactor(db)

	userRepository := userRepo.NewUserRepository(db)
	fileRepository := studentRepo.NewStudentFileRepository(db)
	studentRepository := studentRepo.NewStudentRepository(db)
	attemptRepository := authRepo.NewLoginAttemptRepository(db)

	var photos storage.PhotoStorage
	if cfg.CloudinaryCloudName != "" {
		cld, err := storage.NewCloudinaryStorage(storage.CloudinaryConfig{
			CloudName:    cfg.CloudinaryCloudName,
			APIKey:       cfg.CloudinaryAPIKey,
			APISecret:    cfg.CloudinaryAPISecret,
			UploadFolder: cfg.CloudinaryUploadFolder,
		})
		if err != nil {
			log.Fatalf("failed to initialize cloudinary storage: %v", err)
		}
		photos = cld
	} else {
		log.Println("⚠️  Cloudinary is not configured, staff photo uploads are disabled")
	}

	auditSvc := auditService.NewAuditService(auditRepo.NewSecurityLogRepository(db), attemptRepository, nil)
	auditHandler := auditHttp.NewAuditHandler(auditSvc)

	// Notification Module
	notificationSvc := notifService.NewNotificationService(notifRepo.NewNotificationRepository(db), userRepository, redisClient)
	notificationHandler := notiHttp.NewNotificationHandler(notificationSvc, redisClient, originChecker(cfg.AllowedOrigins))

	permissionSvc := permService.NewPermissionService(transactor, permRepo.NewPermissionRepository(db), userRepository, fileRepository, auditSvc, notificationSvc, nil)
	permissionHandler := permHttp.NewPermissionHandler(permissionSvc)

	var meiliClient meilisearch.ServiceManager
	if cfg.MeiliSearchHost != "" {
		meiliHost := cfg.MeiliSearchHost
		if !strings.HasPrefix(meiliHost, "http") {
			meiliHost = "http://" + meiliHost + ":7700"
		}
		meiliClient = meilisearch.New(meiliHost, meilisearch.WithAPIKey(cfg.MeiliMasterKey))
	}
	searchSvc := searchService.NewMeiliSearchService(meiliClient, permissionSvc)

	tokens := authService.NewTokenIssuer(cfg.JWTSecret, nil)
	revocations := authService.NewRedisRevocationStore(redisClient)
	lockout := authService.NewLockoutTracker(
		authRepo.NewLockoutRepository(db),
		transactor,
		authService.WithMaxAttempts(cfg.MaxLoginAttempts),
		authService.WithLockoutDuration(cfg.LockoutDuration),
	)
	authSvc := authService.NewAuthService(transactor, userRepository, attemptRepository, lockout, auditSvc, tokens, revocations, searchSvc, authService.SessionConfig{
		SessionTTL:    cfg.SessionTimeout,
		RememberMeTTL: cfg.RememberMeTTL,
	})
	authHandler := authHttp.NewAuthHandler(authSvc)

	userSvc := userService.NewUserService(transactor, userRepository, photos, auditSvc, notificationSvc)
	userHandler := userHttp.NewUserHandler(userSvc)

	studentSvc := studentService.NewStudentService(transactor, fileRepository, studentRepository, permissionSvc, auditSvc, notificationSvc, searchSvc, nil)
	studentHandler := studentHttp.NewStudentHandler(studentSvc)

	editSvc := editService.NewEditRequestService(transactor, editRepo.NewEditRequestRepository(db), studentRepository, permissionSvc, auditSvc, notificationSvc, nil)
	editHandler := editHttp.NewEditRequestHandler(editSvc)

	announcementSvc := announcementService.NewAnnouncementService(transactor, announcementRepo.NewAnnouncementRepository(db), auditSvc, notificationSvc, nil)
	announcementHandler := announcementHttp.NewAnnouncementHandler(announcementSvc)

	dashboardSvc := dashboardService.NewDashboardService(editSvc, notificationSvc, studentSvc, announcementSvc)
	dashboardHandler := dashboardHttp.NewDashboardHandler(dashboardSvc)

	loginLimiter := middleware.NewIPRateLimiter(cfg.LoginRateLimit.PerSecond(), cfg.LoginRateLimit.Burst)

	router := gin.New()

	setupCORS(router, cfg.AllowedOrigins)

	router.Use(gin.Recovery())
	router.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/api/notifications/unread-count"},
	}))
	router.Use(middleware.SecurityHeaders())

	authMiddleware := middleware.NewAuthMiddleware(tokens, revocations, userRepository)

	api := router.Group("/api")

	// Public routes (no auth required)
	auth := api.Group("/auth")
	{
		auth.POST("/login", loginLimiter.Middleware(), authHandler.Login)
	}

	// Protected routes (apply auth middleware explicitly)
	protected := api.Group("")
	protected.Use(authMiddleware.RequireAuth())
	{
		protected.POST("/auth/logout", authHandler.Logout)
		protected.GET("/auth/me", userHandler.GetProfile)
		protected.PUT("/auth/password", userHandler.ChangePassword)

		protected.GET("/dashboard", dashboardHandler.GetDashboard)

		// Student routes
		viewStudents := authMiddleware.RequirePermission(access.ActionViewStudents)
		protected.GET("/files", viewStudents, studentHandler.ListFiles)
		protected.GET("/files/:id/students", viewStudents, studentHandler.ListStudents)
		protected.GET("/students/:id", viewStudents, studentHandler.GetStudent)

		// Edit request routes
		editRequests := protected.Group("/edit-requests")
		editRequests.Use(authMiddleware.RequirePermission(access.ActionRequestEdit))
		{
			editRequests.POST("", editHandler.CreateEditRequest)
			editRequests.GET("/mine", editHandler.ListMine)
			editRequests.GET("/:id", editHandler.Get)
		}

		// Announcement routes
		announcements := protected.Group("/announcements")
		{
			postAnnouncements := authMiddleware.RequirePermission(access.ActionPostAnnouncements)
			announcements.GET("", announcementHandler.List)
			announcements.PUT("/read-all", announcementHandler.MarkAllRead)
			announcements.GET("/:id", announcementHandler.Get)
			announcements.POST("", postAnnouncements, announcementHandler.Create)
			announcements.PUT("/:id", postAnnouncements, announcementHandler.Update)
			announcements.DELETE("/:id", postAnnouncements, announcementHandler.Delete)
			announcements.PUT("/:id/pin", postAnnouncements, announcementHandler.TogglePin)
		}

		// Notification routes
		protected.GET("/notifications", notificationHandler.GetNotifications)
		protected.GET("/notifications/unread-count", notificationHandler.UnreadCount)
		protected.PUT("/notifications/:id/read", notificationHandler.MarkAsRead)
		protected.PUT("/notifications/read-all", notificationHandler.MarkAllAsRead)
		protected.GET("/notifications/ws", notificationHandler.HandleWebSocket)

		// Admin routes
		adminGroup := protected.Group("/admin")
		adminGroup.Use(authMiddleware.RequireRole(access.RolesFor(access.ActionManageStaff)...))
		{
			staff := adminGroup.Group("/staff", authMiddleware.RequirePermission(access.ActionManageStaff))
			staff.POST("", userHandler.CreateStaff)
			staff.GET("", userHandler.ListStaff)
			staff.GET("/:id", userHandler.GetStaff)
			staff.PUT("/:id", userHandler.UpdateStaff)
			staff.DELETE("/:id", userHandler.DeactivateStaff)

			adminGroup.POST("/files", authMiddleware.RequirePermission(access.ActionUploadFiles), studentHandler.ImportRoster)
			adminGroup.DELETE("/files/:id", authMiddleware.RequirePermission(access.ActionUploadFiles), studentHandler.DeactivateFile)
			adminGroup.PUT("/students/:id", authMiddleware.RequirePermission(access.ActionEditStudents), studentHandler.UpdateStudent)
			adminGroup.DELETE("/students/:id", authMiddleware.RequirePermission(access.ActionEditStudents), studentHandler.DeleteStudent)

			permissions := adminGroup.Group("/permissions", authMiddleware.RequirePermission(access.ActionManagePermissions))
			permissions.GET("", permissionHandler.GetMatrix)
			permissions.GET("/:user_id", permissionHandler.GetUserGrants)
			permissions.PUT("/:user_id", permissionHandler.SetUserGrants)

			edits := adminGroup.Group("/edit-requests", authMiddleware.RequirePermission(access.ActionResolveEdits))
			edits.GET("", editHandler.List)
			edits.PUT("/read-all", editHandler.MarkAllRead)
			edits.GET("/:id", editHandler.Get)
			edits.PUT("/:id/resolve", editHandler.Resolve)
			edits.PUT("/:id/dismiss", editHandler.Dismiss)

			adminGroup.GET("/audit-logs", authMiddleware.RequirePermission(access.ActionViewAuditLog), auditHandler.ListLogs)
		}
	}

	return &Server{
		engine:      router,
		db:          db,
		redisClient: redisClient,
	}
}

func (s *Server) Run(addr string) error {
	return s.engine.Run(addr)
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func parseOrigins(allowedOrigins string) []string {
	var origins []string
	for _, o := range strings.Split(allowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	return origins
}

func setupCORS(router *gin.Engine, allowedOrigins string) {
	router.Use(cors.New(cors.Config{
		AllowOrigins:     parseOrigins(allowedOrigins),
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
}

// originChecker accepts WebSocket upgrades from the CORS origins and from
// clients that send no Origin header.
func originChecker(allowedOrigins string) func(r *http.Request) bool {
	allowed := make(map[string]bool)
	for _, o := range parseOrigins(allowedOrigins) {
		allowed[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowed[origin]
	}
}
