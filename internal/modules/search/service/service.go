package service

import (
	"context"
	"fmt"
	"html"
	"log"
	"strings"
	"time"

	"anoa.com/studentrecords/internal/entity"
	permService "anoa.com/studentrecords/internal/modules/permission/service"
	"github.com/google/uuid"
	"github.com/meilisearch/meilisearch-go"
	"github.com/microcosm-cc/bluemonday"
)

const (
	StudentsIndex  = "students"
	signingKeyName = "StudentSearchSigner"
	tokenTTL       = 24 * time.Hour
)

// StudentIndexer keeps the students index in step with roster changes.
type StudentIndexer interface {
	IndexStudents(file *entity.StudentFile, students []entity.Student) error
	DeleteStudents(ids []uuid.UUID) error
}

type SearchService interface {
	StudentIndexer
	// GenerateSearchToken signs a tenant token limited to the files the user may read.
	GenerateSearchToken(ctx context.Context, user *entity.User) (string, error)
}

type meiliSearchService struct {
	client        meilisearch.ServiceManager
	registry      permService.Registry
	signingKeyUID string
	signingKey    string
	sanitizer     *bluemonday.Policy
	now           func() time.Time
}

// NewMeiliSearchService prepares the students index and the tenant token
// signing key. A nil client yields a service that indexes nothing and
// issues empty tokens.
func NewMeiliSearchService(client meilisearch.ServiceManager, registry permService.Registry) SearchService {
	s := &meiliSearchService{
		client:    client,
		registry:  registry,
		sanitizer: bluemonday.StrictPolicy(),
		now:       time.Now,
	}
	if client == nil {
		log.Println("⚠️  Meilisearch is not configured, student search is disabled")
		return s
	}
	s.initIndex()
	s.initSigningKey()
	return s
}

func (s *meiliSearchService) initSigningKey() {
	resp, err := s.client.GetKeys(&meilisearch.KeysQuery{Limit: 20})
	if err != nil {
		log.Printf("Failed to get meilisearch keys: %v", err)
		return
	}

	for _, key := range resp.Results {
		if key.Name == signingKeyName {
			s.signingKeyUID = key.UID
			s.signingKey = key.Key
			log.Println("🔑 Found existing Meilisearch signing key")
			return
		}
	}

	key, err := s.client.CreateKey(&meilisearch.Key{
		Description: "Signs tenant tokens for student search",
		Name:        signingKeyName,
		Actions:     []string{"search"},
		Indexes:     []string{StudentsIndex},
		ExpiresAt:   time.Now().AddDate(100, 0, 0),
	})
	if err != nil {
		log.Printf("Failed to create signing key: %v", err)
		return
	}

	s.signingKeyUID = key.UID
	s.signingKey = key.Key
	log.Println("🔑 Created new Meilisearch signing key")
}

func (s *meiliSearchService) initIndex() {
	filterable := []any{"file_id", "class_name", "division", "year", "status"}
	if _, err := s.client.Index(StudentsIndex).UpdateFilterableAttributes(&filterable); err != nil {
		log.Printf("Failed to update students filterable attributes: %v", err)
	}

	sortable := []string{"roll_no", "full_name"}
	if _, err := s.client.Index(StudentsIndex).UpdateSortableAttributes(&sortable); err != nil {
		log.Printf("Failed to update students sortable attributes: %v", err)
	}

	log.Println("🔎 Meilisearch students index initialized")
}

type studentDoc struct {
	ID         string `json:"id"`
	FileID     string `json:"file_id"`
	FileName   string `json:"file_name"`
	RollNo     string `json:"roll_no"`
	PRN        string `json:"prn"`
	FullName   string `json:"full_name"`
	Email      string `json:"email"`
	ParentName string `json:"parent_name"`
	ClassName  string `json:"class_name"`
	Division   string `json:"division"`
	Year       string `json:"year"`
	Status     string `json:"status"`
}

func (s *meiliSearchService) cleanText(text string) string {
	cleaned := html.UnescapeString(s.sanitizer.Sanitize(text))
	return strings.Join(strings.Fields(cleaned), " ")
}

func (s *meiliSearchService) newStudentDoc(file *entity.StudentFile, st entity.Student) studentDoc {
	return studentDoc{
		ID:         st.ID.String(),
		FileID:     file.ID.String(),
		FileName:   file.FileName,
		RollNo:     st.RollNo,
		PRN:        st.PRN,
		FullName:   s.cleanText(st.FullName),
		Email:      st.Email,
		ParentName: s.cleanText(st.ParentName),
		ClassName:  st.ClassName,
		Division:   st.Division,
		Year:       st.Year,
		Status:     string(st.Status),
	}
}

func (s *meiliSearchService) IndexStudents(file *entity.StudentFile, students []entity.Student) error {
	if s.client == nil || len(students) == 0 {
		return nil
	}

	docs := make([]studentDoc, 0, len(students))
	for _, st := range students {
		docs = append(docs, s.newStudentDoc(file, st))
	}

	task, err := s.client.Index(StudentsIndex).AddDocuments(docs, strPtr("id"))
	if err != nil {
		return err
	}
	log.Printf("Indexed %d students of %s, task id: %d", len(docs), file.FileName, task.TaskUID)
	return nil
}

func (s *meiliSearchService) DeleteStudents(ids []uuid.UUID) error {
	if s.client == nil {
		return nil
	}
	for _, id := range ids {
		if _, err := s.client.Index(StudentsIndex).DeleteDocument(id.String()); err != nil {
			return err
		}
	}
	return nil
}

func (s *meiliSearchService) GenerateSearchToken(ctx context.Context, user *entity.User) (string, error) {
	if s.client == nil {
		return "", nil
	}
	if s.signingKeyUID == "" || s.signingKey == "" {
		return "", fmt.Errorf("signing key not initialized")
	}

	ids, all, err := s.registry.AccessibleFileIDs(ctx, user)
	if err != nil {
		return "", err
	}

	return s.client.GenerateTenantToken(s.signingKeyUID, searchRules(ids, all), &meilisearch.TenantTokenOptions{
		APIKey:    s.signingKey,
		ExpiresAt: s.now().Add(tokenTTL),
	})
}

// searchRules builds the tenant token rules: unrestricted when all is set,
// otherwise a file_id filter over the granted files.
func searchRules(fileIDs []uuid.UUID, all bool) map[string]any {
	if all {
		return map[string]any{StudentsIndex: map[string]any{"filter": nil}}
	}
	if len(fileIDs) == 0 {
		// matches no document
		return map[string]any{StudentsIndex: map[string]any{"filter": "file_id IS NULL"}}
	}

	quoted := make([]string, 0, len(fileIDs))
	for _, id := range fileIDs {
		quoted = append(quoted, fmt.Sprintf("'%s'", id))
	}
	return map[string]any{
		StudentsIndex: map[string]any{
			"filter": fmt.Sprintf("file_id IN [%s]", strings.Join(quoted, ", ")),
		},
	}
}

func strPtr(s string) *string {
	return &s
}
