package server

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"anoa.com/studentrecords/internal/config"
	"anoa.com/studentrecords/internal/entity"
	"anoa.com/studentrecords/internal/testutil"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func testConfig() *config.Config {
	cfg := &config.Config{
		AppEnv:           "test",
		AllowedOrigins:   "http://localhost:3000",
		JWTSecret:        "test-secret",
		SessionTimeout:   30 * time.Minute,
		RememberMeTTL:    24 * time.Hour,
		MaxLoginAttempts: 3,
		LockoutDuration:  15 * time.Minute,
	}
	cfg.LoginRateLimit.PerMinute = 600
	cfg.LoginRateLimit.Burst = 100
	return cfg
}

type testServer struct {
	handler http.Handler
	db      *gorm.DB
}

func newTestServer(t *testing.T, cfg *config.Config) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.NewTestDB(t)
	return &testServer{handler: NewServer(cfg, db, nil).Handler(), db: db}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}

func (s *testServer) postForm(t *testing.T, path, token string, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}

func (s *testServer) login(t *testing.T, username string, role entity.Role) string {
	t.Helper()

	w := s.do(t, http.MethodPost, "/api/auth/login", "", gin.H{
		"username": username,
		"password": testutil.DefaultPassword,
		"role":     role,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		AccessToken string `json:"access_token"`
		RedirectTo  string `json:"redirect_to"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, role.DashboardPath(), resp.RedirectTo)
	return resp.AccessToken
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestLoginThenDashboard(t *testing.T) {
	s := newTestServer(t, testConfig())
	testutil.CreateUser(t, s.db, "teacher1", entity.RoleTeacher)

	token := s.login(t, "teacher1", entity.RoleTeacher)

	w := s.do(t, http.MethodGet, "/api/dashboard", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	view := decode[struct {
		Role         string   `json:"role"`
		RoleLabel    string   `json:"role_label"`
		Capabilities []string `json:"capabilities"`
	}](t, w)
	assert.Equal(t, "teacher", view.Role)
	assert.Equal(t, "Teacher", view.RoleLabel)
	assert.Contains(t, view.Capabilities, "request_edit")
	assert.NotContains(t, view.Capabilities, "manage_staff")

	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	s := newTestServer(t, testConfig())

	for _, path := range []string{"/api/dashboard", "/api/files", "/api/admin/staff", "/api/notifications"} {
		w := s.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}

	w := s.do(t, http.MethodGet, "/api/dashboard", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestDeactivatedUserLosesSession(t *testing.T) {
	s := newTestServer(t, testConfig())
	user := testutil.CreateUser(t, s.db, "guardian1", entity.RoleGuardian)
	token := s.login(t, "guardian1", entity.RoleGuardian)

	require.NoError(t, s.db.Model(user).Update("is_active", false).Error)

	w := s.do(t, http.MethodGet, "/api/dashboard", token, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminRoutesRejectStaff(t *testing.T) {
	s := newTestServer(t, testConfig())
	testutil.CreateUser(t, s.db, "hod1", entity.RoleHOD)
	token := s.login(t, "hod1", entity.RoleHOD)

	for _, path := range []string{"/api/admin/staff", "/api/admin/permissions", "/api/admin/audit-logs", "/api/admin/edit-requests"} {
		w := s.do(t, http.MethodGet, path, token, nil)
		assert.Equal(t, http.StatusForbidden, w.Code, path)
	}
}

func TestAdminCannotRequestEdits(t *testing.T) {
	s := newTestServer(t, testConfig())
	testutil.CreateUser(t, s.db, "admin1", entity.RoleAdmin)
	token := s.login(t, "admin1", entity.RoleAdmin)

	w := s.do(t, http.MethodGet, "/api/edit-requests/mine", token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestLoginLockout(t *testing.T) {
	s := newTestServer(t, testConfig())
	testutil.CreateUser(t, s.db, "teacher1", entity.RoleTeacher)

	bad := gin.H{"username": "teacher1", "password": "wrong", "role": "teacher"}

	w := s.do(t, http.MethodPost, "/api/auth/login", "", bad)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "2 attempts remaining")

	s.do(t, http.MethodPost, "/api/auth/login", "", bad)
	w = s.do(t, http.MethodPost, "/api/auth/login", "", bad)
	assert.Equal(t, http.StatusLocked, w.Code)

	w = s.do(t, http.MethodPost, "/api/auth/login", "", gin.H{
		"username": "teacher1",
		"password": testutil.DefaultPassword,
		"role":     "teacher",
	})
	assert.Equal(t, http.StatusLocked, w.Code)
	assert.Contains(t, w.Body.String(), "Account is locked")
}

func TestLoginIsRateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.LoginRateLimit.PerMinute = 1
	cfg.LoginRateLimit.Burst = 2
	s := newTestServer(t, cfg)

	body := gin.H{"username": "nobody", "password": "x", "role": "teacher"}
	s.do(t, http.MethodPost, "/api/auth/login", "", body)
	s.do(t, http.MethodPost, "/api/auth/login", "", body)

	w := s.do(t, http.MethodPost, "/api/auth/login", "", body)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestRosterGrantAndEditRequestFlow(t *testing.T) {
	s := newTestServer(t, testConfig())
	admin := testutil.CreateUser(t, s.db, "admin1", entity.RoleAdmin)
	adminToken := s.login(t, "admin1", entity.RoleAdmin)

	w := s.postForm(t, "/api/admin/staff", adminToken, map[string]string{
		"username":   "teacher1",
		"password":   testutil.DefaultPassword,
		"full_name":  "Meera Joshi",
		"email":      "meera@college.local",
		"department": "Computer",
		"role":       "teacher",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	teacher := decode[struct {
		Data struct {
			ID   string `json:"id"`
			Role string `json:"role"`
		} `json:"data"`
	}](t, w).Data
	assert.Equal(t, "teacher", teacher.Role)

	var stored entity.User
	require.NoError(t, s.db.First(&stored, "id = ?", teacher.ID).Error)
	require.NotNil(t, stored.CreatedByID)
	assert.Equal(t, admin.ID, *stored.CreatedByID)

	teacherToken := s.login(t, "teacher1", entity.RoleTeacher)

	w = s.do(t, http.MethodPost, "/api/admin/files", adminToken, gin.H{
		"class_name":    "Computer",
		"division":      "a",
		"year":          "SE",
		"academic_year": "2025-26",
		"students": []gin.H{
			{"roll_no": "1", "full_name": "Asha Patil"},
			{"roll_no": "2", "full_name": "Ravi Kulkarni"},
		},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	file := decode[struct {
		Data struct {
			ID       string `json:"id"`
			FileName string `json:"file_name"`
		} `json:"data"`
	}](t, w).Data
	assert.Equal(t, "SE_A_Computer_2025-26", file.FileName)

	// no grant yet
	w = s.do(t, http.MethodGet, "/api/files/"+file.ID+"/students", teacherToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodPut, "/api/admin/permissions/"+teacher.ID, adminToken, gin.H{
		"file_ids": []string{file.ID},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodGet, "/api/files/"+file.ID+"/students", teacherToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	students := decode[struct {
		Data []struct {
			ID     string `json:"id"`
			RollNo string `json:"roll_no"`
		} `json:"data"`
	}](t, w).Data
	require.Len(t, students, 2)

	w = s.do(t, http.MethodPost, "/api/edit-requests", teacherToken, gin.H{
		"student_id":    students[0].ID,
		"field_to_edit": "roll_no",
		"remark":        "Roll number was swapped",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	request := decode[struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}](t, w).Data

	w = s.do(t, http.MethodPost, "/api/edit-requests", teacherToken, gin.H{
		"student_id":    students[0].ID,
		"field_to_edit": "roll_no",
		"remark":        "again",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), `"warning":true`)

	w = s.do(t, http.MethodGet, "/api/admin/edit-requests/"+request.ID, adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "Roll number was swapped")

	w = s.do(t, http.MethodPut, "/api/admin/edit-requests/"+request.ID+"/resolve", adminToken, gin.H{
		"resolution_note": "Fixed",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodPut, "/api/admin/edit-requests/"+request.ID+"/dismiss", adminToken, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodGet, "/api/notifications", teacherToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "edit_resolved")
	assert.Contains(t, w.Body.String(), "staff_created")

	w = s.do(t, http.MethodGet, "/api/edit-requests/"+request.ID, teacherToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"status":"resolved"`)

	w = s.do(t, http.MethodGet, "/api/admin/audit-logs?action=resolve_edit", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "resolve_edit")

	w = s.do(t, http.MethodDelete, "/api/admin/students/"+students[1].ID, teacherToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodDelete, "/api/admin/students/"+students[1].ID, adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodGet, "/api/files/"+file.ID+"/students", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total_students":1`)
	assert.NotContains(t, w.Body.String(), "Ravi Kulkarni")
}

func TestAnnouncementsReachTheirAudience(t *testing.T) {
	s := newTestServer(t, testConfig())
	testutil.CreateUser(t, s.db, "admin1", entity.RoleAdmin)
	testutil.CreateUser(t, s.db, "teacher1", entity.RoleTeacher)
	adminToken := s.login(t, "admin1", entity.RoleAdmin)
	teacherToken := s.login(t, "teacher1", entity.RoleTeacher)

	w := s.do(t, http.MethodPost, "/api/announcements", adminToken, gin.H{
		"title":      "Exam schedule",
		"content":    "Mid-term exams start Monday.",
		"category":   "exam",
		"visibility": "teacher",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}](t, w).Data

	w = s.do(t, http.MethodPost, "/api/announcements", teacherToken, gin.H{"title": "x", "content": "y"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodGet, "/api/dashboard", teacherToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"unread_announcements":1`)

	w = s.do(t, http.MethodGet, "/api/announcements/"+created.ID, teacherToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"is_read":true`)

	w = s.do(t, http.MethodGet, "/api/announcements", teacherToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Exam schedule")
	assert.Contains(t, w.Body.String(), `"unread_count":0`)

	w = s.do(t, http.MethodGet, "/api/notifications", teacherToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/announcements/"+created.ID)

	w = s.do(t, http.MethodDelete, "/api/announcements/"+created.ID, adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodGet, "/api/announcements/"+created.ID, teacherToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
