package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studydeck/content-api/internal/dto"
	"github.com/studydeck/content-api/internal/middleware"
	"github.com/studydeck/content-api/internal/models"
	"github.com/studydeck/content-api/internal/service"
	appErrors "github.com/studydeck/content-api/pkg/errors"
)

type stubLibraryService struct {
	listResp  *dto.SlideListResponse
	listErr   error
	listQuery dto.SlideListQuery

	courses    []string
	coursesErr error

	getResp *dto.SlideResponse
	getErr  error

	uploadResp *dto.SlideResponse
	uploadErr  error
	uploadMeta dto.CreateSlideRequest
	uploads    []service.SlideUpload

	deleteResp *dto.DeleteSlideResponse
	deleteErr  error
	deletedID  string
}

func (s *stubLibraryService) List(_ context.Context, _ *models.JWTClaims, query dto.SlideListQuery) (*dto.SlideListResponse, error) {
	s.listQuery = query
	return s.listResp, s.listErr
}

func (s *stubLibraryService) Courses(_ context.Context, _ *models.JWTClaims) ([]string, error) {
	return s.courses, s.coursesErr
}

func (s *stubLibraryService) Get(_ context.Context, _ *models.JWTClaims, _ string) (*dto.SlideResponse, error) {
	return s.getResp, s.getErr
}

func (s *stubLibraryService) Upload(_ context.Context, _ *models.JWTClaims, meta dto.CreateSlideRequest, upload service.SlideUpload) (*dto.SlideResponse, error) {
	s.uploadMeta = meta
	s.uploads = append(s.uploads, upload)
	return s.uploadResp, s.uploadErr
}

func (s *stubLibraryService) Delete(_ context.Context, _ *models.JWTClaims, id string) (*dto.DeleteSlideResponse, error) {
	s.deletedID = id
	return s.deleteResp, s.deleteErr
}

func testContext(t *testing.T, req *http.Request) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(recorder)
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "u1", Role: models.RoleInstructor})
	return c, recorder
}

func TestSlideHandlerListTranslatesQuery(t *testing.T) {
	stub := &stubLibraryService{listResp: &dto.SlideListResponse{Slides: []dto.SlideResponse{}}}
	handler := NewSlideHandler(stub, 10<<20)

	req := httptest.NewRequest(http.MethodGet, "/slides?search=cells&courseId=bio-101&type=image&sort=title_asc&page=2&pageSize=25", nil)
	c, recorder := testContext(t, req)

	handler.List(c)

	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "cells", stub.listQuery.Search)
	assert.Equal(t, "bio-101", stub.listQuery.CourseID)
	assert.Equal(t, models.TypeFilterImage, stub.listQuery.Type)
	assert.Equal(t, models.SortTitleAsc, stub.listQuery.Sort)
	assert.Equal(t, 2, stub.listQuery.Page)
	assert.Equal(t, 25, stub.listQuery.PageSize)
}

func TestSlideHandlerListUnavailable(t *testing.T) {
	stub := &stubLibraryService{listErr: appErrors.ErrConnectionUnavailable}
	handler := NewSlideHandler(stub, 10<<20)

	c, recorder := testContext(t, httptest.NewRequest(http.MethodGet, "/slides", nil))
	handler.List(c)

	require.Equal(t, http.StatusServiceUnavailable, recorder.Code)
	var envelope struct {
		Error *appErrors.Error `json:"error"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Error)
	assert.Equal(t, appErrors.ErrConnectionUnavailable.Code, envelope.Error.Code)
}

func TestSlideHandlerUpload(t *testing.T) {
	stub := &stubLibraryService{uploadResp: &dto.SlideResponse{Kind: models.SlideKindPDF}}
	handler := NewSlideHandler(stub, 10<<20)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	require.NoError(t, writer.WriteField("title", "Mitosis"))
	require.NoError(t, writer.WriteField("courseId", "bio-101"))
	part, err := writer.CreateFormFile("file", "mitosis.pdf")
	require.NoError(t, err)
	_, err = part.Write([]byte("%PDF-1.4 test"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/slides", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	c, recorder := testContext(t, req)

	handler.Upload(c)

	require.Equal(t, http.StatusCreated, recorder.Code)
	assert.Equal(t, "Mitosis", stub.uploadMeta.Title)
	assert.Equal(t, "bio-101", stub.uploadMeta.CourseID)
	require.Len(t, stub.uploads, 1)
	assert.Equal(t, "mitosis.pdf", stub.uploads[0].Filename)
	assert.Positive(t, stub.uploads[0].Size)
}

func TestSlideHandlerUploadMissingFile(t *testing.T) {
	stub := &stubLibraryService{}
	handler := NewSlideHandler(stub, 10<<20)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	require.NoError(t, writer.WriteField("title", "Mitosis"))
	require.NoError(t, writer.WriteField("courseId", "bio-101"))
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/slides", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	c, recorder := testContext(t, req)

	handler.Upload(c)

	require.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Empty(t, stub.uploads)
}

func TestSlideHandlerUploadRejectsOversizedBody(t *testing.T) {
	stub := &stubLibraryService{}
	handler := NewSlideHandler(stub, 1024)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	require.NoError(t, writer.WriteField("title", "Mitosis"))
	require.NoError(t, writer.WriteField("courseId", "bio-101"))
	part, err := writer.CreateFormFile("file", "huge.pdf")
	require.NoError(t, err)
	_, err = part.Write(bytes.Repeat([]byte("a"), 2<<20))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/slides", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	c, recorder := testContext(t, req)

	handler.Upload(c)

	require.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Empty(t, stub.uploads)
}

func TestSlideHandlerDelete(t *testing.T) {
	stub := &stubLibraryService{deleteResp: &dto.DeleteSlideResponse{ID: "s1", FileRemoved: false}}
	handler := NewSlideHandler(stub, 10<<20)

	c, recorder := testContext(t, httptest.NewRequest(http.MethodDelete, "/slides/s1", nil))
	c.Params = gin.Params{{Key: "id", Value: "s1"}}

	handler.Delete(c)

	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "s1", stub.deletedID)

	var envelope struct {
		Data dto.DeleteSlideResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &envelope))
	assert.False(t, envelope.Data.FileRemoved)
	assert.Equal(t, "s1", envelope.Data.ID)
}
