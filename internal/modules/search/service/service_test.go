package service

import (
	"context"
	"testing"

	"anoa.com/studentrecords/internal/entity"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchRules(t *testing.T) {
	a := uuid.MustParse("6f1c1f0e-0000-4000-8000-000000000001")
	b := uuid.MustParse("6f1c1f0e-0000-4000-8000-000000000002")

	all := searchRules(nil, true)
	assert.Equal(t, map[string]any{"filter": nil}, all[StudentsIndex])

	scoped := searchRules([]uuid.UUID{a, b}, false)
	assert.Equal(t,
		"file_id IN ['6f1c1f0e-0000-4000-8000-000000000001', '6f1c1f0e-0000-4000-8000-000000000002']",
		scoped[StudentsIndex].(map[string]any)["filter"])

	none := searchRules(nil, false)
	assert.Equal(t, "file_id IS NULL", none[StudentsIndex].(map[string]any)["filter"])
}

func TestStudentDocCleansText(t *testing.T) {
	s := NewMeiliSearchService(nil, nil).(*meiliSearchService)
	file := &entity.StudentFile{ID: uuid.New(), FileName: "FE_A_CS_2025-26"}
	st := entity.Student{
		ID:         uuid.New(),
		RollNo:     "12",
		FullName:   "  <b>Asha</b>\n Patil ",
		ParentName: "Ravi &amp; Meena",
		Status:     entity.StudentStatusMarked,
	}

	doc := s.newStudentDoc(file, st)
	assert.Equal(t, "Asha Patil", doc.FullName)
	assert.Equal(t, "Ravi & Meena", doc.ParentName)
	assert.Equal(t, file.ID.String(), doc.FileID)
	assert.Equal(t, "marked", doc.Status)
}

func TestDisabledServiceIsNoop(t *testing.T) {
	s := NewMeiliSearchService(nil, nil)

	require.NoError(t, s.IndexStudents(&entity.StudentFile{}, []entity.Student{{ID: uuid.New()}}))
	require.NoError(t, s.DeleteStudents([]uuid.UUID{uuid.New()}))

	token, err := s.GenerateSearchToken(context.Background(), &entity.User{Role: entity.RoleTeacher})
	require.NoError(t, err)
	assert.Empty(t, token)
}
