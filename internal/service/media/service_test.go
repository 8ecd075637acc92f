package media

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"inspectcall-backend/internal/domain"
	apperrors "inspectcall-backend/pkg/errors"
	"inspectcall-backend/pkg/metrics"
)

// Mocks

type MockMediaRepository struct {
	mock.Mock
}

func (m *MockMediaRepository) CreateImage(ctx context.Context, image *domain.CapturedImage) error {
	args := m.Called(ctx, image)
	return args.Error(0)
}

func (m *MockMediaRepository) CreateRecording(ctx context.Context, recording *domain.VideoRecording) error {
	args := m.Called(ctx, recording)
	return args.Error(0)
}

func (m *MockMediaRepository) GetImagesByCall(ctx context.Context, callID uuid.UUID, limit, offset int) ([]*domain.CapturedImage, error) {
	args := m.Called(ctx, callID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.CapturedImage), args.Error(1)
}

func (m *MockMediaRepository) GetRecordingsByCall(ctx context.Context, callID uuid.UUID, limit, offset int) ([]*domain.VideoRecording, error) {
	args := m.Called(ctx, callID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.VideoRecording), args.Error(1)
}

type MockCallResolver struct {
	mock.Mock
}

func (m *MockCallResolver) GetCall(ctx context.Context, callID uuid.UUID) (*domain.Call, error) {
	args := m.Called(ctx, callID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Call), args.Error(1)
}

type MockObjectStore struct {
	mock.Mock
}

func (m *MockObjectStore) PresignedUploadURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error) {
	args := m.Called(ctx, objectKey, expiry)
	return args.String(0), args.Error(1)
}

func (m *MockObjectStore) PresignedDownloadURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error) {
	args := m.Called(ctx, objectKey, expiry)
	return args.String(0), args.Error(1)
}

func newTestService(calls *MockCallResolver, repo *MockMediaRepository, store *MockObjectStore) *Service {
	return NewService(repo, calls, store, metrics.NewMetrics("media-test"))
}

func activeCall() *domain.Call {
	return &domain.Call{
		CallID:        uuid.New(),
		CoordinatorID: uuid.New(),
		InspectorID:   uuid.New(),
		Status:        domain.CallStatusActive,
	}
}

// Tests

func TestRecordImage(t *testing.T) {
	call := activeCall()
	calls := new(MockCallResolver)
	calls.On("GetCall", mock.Anything, call.CallID).Return(call, nil)

	repo := new(MockMediaRepository)
	repo.On("CreateImage", mock.Anything, mock.AnythingOfType("*domain.CapturedImage")).Return(nil)

	service := newTestService(calls, repo, new(MockObjectStore))

	image, err := service.RecordImage(context.Background(), &RecordImageInput{
		CallID:      call.CallID,
		Filename:    "valve.jpg",
		OriginalURL: "https://storage/valve.jpg",
	})

	assert.NoError(t, err)
	assert.Equal(t, call.CallID, image.CallID)
	assert.NotEqual(t, uuid.Nil, image.ImageID)
	assert.False(t, image.CapturedAt.IsZero())
	assert.Nil(t, image.Metadata)
	repo.AssertExpectations(t)
}

func TestRecordImageMissingFields(t *testing.T) {
	service := newTestService(new(MockCallResolver), new(MockMediaRepository), new(MockObjectStore))

	_, err := service.RecordImage(context.Background(), &RecordImageInput{
		CallID:      uuid.New(),
		OriginalURL: "https://storage/x.jpg",
	})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeMissingField))

	_, err = service.RecordImage(context.Background(), &RecordImageInput{
		CallID:   uuid.New(),
		Filename: "x.jpg",
	})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeMissingField))
}

func TestRecordImageAfterCallEnded(t *testing.T) {
	call := activeCall()
	call.Status = domain.CallStatusEnded
	calls := new(MockCallResolver)
	calls.On("GetCall", mock.Anything, call.CallID).Return(call, nil)

	repo := new(MockMediaRepository)
	repo.On("CreateImage", mock.Anything, mock.AnythingOfType("*domain.CapturedImage")).Return(nil)

	service := newTestService(calls, repo, new(MockObjectStore))

	image, err := service.RecordImage(context.Background(), &RecordImageInput{
		CallID:      call.CallID,
		Filename:    "late.jpg",
		OriginalURL: "https://storage/late.jpg",
	})

	// Captures that straggle in after the call ends are kept, but flagged
	assert.NoError(t, err)
	assert.Equal(t, true, image.Metadata["late_capture"])
}

func TestRecordVideoMIMEAllowList(t *testing.T) {
	call := activeCall()
	calls := new(MockCallResolver)
	calls.On("GetCall", mock.Anything, call.CallID).Return(call, nil)

	repo := new(MockMediaRepository)
	repo.On("CreateRecording", mock.Anything, mock.AnythingOfType("*domain.VideoRecording")).Return(nil)

	service := newTestService(calls, repo, new(MockObjectStore))

	for _, mimeType := range []string{"video/webm", "video/mp4"} {
		_, err := service.RecordVideo(context.Background(), &RecordVideoInput{
			CallID:      call.CallID,
			Filename:    "walkthrough.webm",
			MimeType:    mimeType,
			OriginalURL: "https://storage/walkthrough.webm",
		})
		assert.NoError(t, err, "mime %s", mimeType)
	}

	for _, mimeType := range []string{"video/avi", "video/quicktime", "image/jpeg", "application/octet-stream"} {
		_, err := service.RecordVideo(context.Background(), &RecordVideoInput{
			CallID:      call.CallID,
			Filename:    "walkthrough.avi",
			MimeType:    mimeType,
			OriginalURL: "https://storage/walkthrough.avi",
		})
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeValidation), "mime %s", mimeType)
	}
}

func TestRecordVideoExtensionFallback(t *testing.T) {
	call := activeCall()
	calls := new(MockCallResolver)
	calls.On("GetCall", mock.Anything, call.CallID).Return(call, nil)

	repo := new(MockMediaRepository)
	repo.On("CreateRecording", mock.Anything, mock.AnythingOfType("*domain.VideoRecording")).Return(nil)

	service := newTestService(calls, repo, new(MockObjectStore))

	// No MIME type given: the extension decides, case-insensitively
	_, err := service.RecordVideo(context.Background(), &RecordVideoInput{
		CallID:      call.CallID,
		Filename:    "CLIP.MP4",
		OriginalURL: "https://storage/CLIP.MP4",
	})
	assert.NoError(t, err)

	_, err = service.RecordVideo(context.Background(), &RecordVideoInput{
		CallID:      call.CallID,
		Filename:    "clip.mov",
		OriginalURL: "https://storage/clip.mov",
	})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeValidation))
}

func TestRecordCaptureResultKinds(t *testing.T) {
	call := activeCall()
	calls := new(MockCallResolver)
	calls.On("GetCall", mock.Anything, call.CallID).Return(call, nil)

	repo := new(MockMediaRepository)
	repo.On("CreateImage", mock.Anything, mock.AnythingOfType("*domain.CapturedImage")).Return(nil)
	repo.On("CreateRecording", mock.Anything, mock.AnythingOfType("*domain.VideoRecording")).Return(nil)

	service := newTestService(calls, repo, new(MockObjectStore))

	// Plain result with no kind is an image
	err := service.RecordCaptureResult(context.Background(), call.CallID, &domain.CaptureResult{
		Filename:    "site.jpg",
		OriginalURL: "https://storage/site.jpg",
	})
	assert.NoError(t, err)
	repo.AssertNumberOfCalls(t, "CreateImage", 1)

	// Explicit kind routes to the recording ledger
	err = service.RecordCaptureResult(context.Background(), call.CallID, &domain.CaptureResult{
		Kind:        "video",
		Filename:    "clip.webm",
		OriginalURL: "https://storage/clip.webm",
	})
	assert.NoError(t, err)

	// A video MIME type routes to the recording ledger even without kind
	err = service.RecordCaptureResult(context.Background(), call.CallID, &domain.CaptureResult{
		Filename:    "clip2.webm",
		MimeType:    "video/webm",
		OriginalURL: "https://storage/clip2.webm",
	})
	assert.NoError(t, err)
	repo.AssertNumberOfCalls(t, "CreateRecording", 2)
}

func TestListImagesUnknownCall(t *testing.T) {
	callID := uuid.New()
	calls := new(MockCallResolver)
	calls.On("GetCall", mock.Anything, callID).Return(nil, apperrors.CallNotFoundError())

	service := newTestService(calls, new(MockMediaRepository), new(MockObjectStore))

	_, err := service.ListImages(context.Background(), callID, 0, 0)

	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeCallNotFound))
}

func TestListImagesClampsPage(t *testing.T) {
	call := activeCall()
	calls := new(MockCallResolver)
	calls.On("GetCall", mock.Anything, call.CallID).Return(call, nil)

	repo := new(MockMediaRepository)
	repo.On("GetImagesByCall", mock.Anything, call.CallID, 50, 0).Return([]*domain.CapturedImage{}, nil)
	repo.On("GetImagesByCall", mock.Anything, call.CallID, 100, 0).Return([]*domain.CapturedImage{}, nil)

	service := newTestService(calls, repo, new(MockObjectStore))

	_, err := service.ListImages(context.Background(), call.CallID, 0, -3)
	assert.NoError(t, err)

	_, err = service.ListImages(context.Background(), call.CallID, 9999, 0)
	assert.NoError(t, err)

	repo.AssertExpectations(t)
}

func TestGenerateUploadURL(t *testing.T) {
	call := activeCall()
	calls := new(MockCallResolver)
	calls.On("GetCall", mock.Anything, call.CallID).Return(call, nil)

	store := new(MockObjectStore)
	store.On("PresignedUploadURL", mock.Anything, mock.AnythingOfType("string"), mock.AnythingOfType("time.Duration")).
		Return("https://minio/presigned", nil)

	service := newTestService(calls, new(MockMediaRepository), store)

	output, err := service.GenerateUploadURL(context.Background(), &GenerateUploadURLInput{
		CallID:   call.CallID,
		Filename: "site.jpg",
	})

	assert.NoError(t, err)
	assert.Equal(t, "https://minio/presigned", output.UploadURL)
	assert.Contains(t, output.ObjectKey, "calls/"+call.CallID.String()+"/images/")
	assert.Contains(t, output.ObjectKey, "site.jpg")
	assert.True(t, output.ExpiresAt.After(time.Now()))
}

func TestGenerateUploadURLVideoExtension(t *testing.T) {
	service := newTestService(new(MockCallResolver), new(MockMediaRepository), new(MockObjectStore))

	_, err := service.GenerateUploadURL(context.Background(), &GenerateUploadURLInput{
		CallID:   uuid.New(),
		Filename: "clip.avi",
		Kind:     "video",
	})

	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeValidation))
}

func TestGenerateDownloadURLForeignKeyRejected(t *testing.T) {
	call := activeCall()
	calls := new(MockCallResolver)
	calls.On("GetCall", mock.Anything, call.CallID).Return(call, nil)

	service := newTestService(calls, new(MockMediaRepository), new(MockObjectStore))

	// Keys from another call's namespace never presign
	_, err := service.GenerateDownloadURL(context.Background(), call.CallID, "calls/"+uuid.NewString()+"/images/x.jpg")

	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeForbidden))
}
