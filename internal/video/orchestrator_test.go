package video

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/SIReal3103/Vuiha-AI-Thuc-Chien/internal/gateway"
)

// mockGateway implements gateway.Client for testing.
type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) StartOperation(ctx context.Context, endpoint string, payload any) (gateway.Operation, error) {
	args := m.Called(ctx, endpoint, payload)
	return args.Get(0).(gateway.Operation), args.Error(1)
}

func (m *mockGateway) PollOperation(ctx context.Context, handle string) (gateway.Operation, error) {
	args := m.Called(ctx, handle)
	return args.Get(0).(gateway.Operation), args.Error(1)
}

func (m *mockGateway) DownloadArtifact(ctx context.Context, artifactID string) ([]byte, error) {
	args := m.Called(ctx, artifactID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

// fakeSleeper records waits without sleeping.
type fakeSleeper struct {
	calls []time.Duration
}

func (f *fakeSleeper) Sleep(_ context.Context, d time.Duration) error {
	f.calls = append(f.calls, d)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestOrchestrator(gw gateway.Client, sleeper *fakeSleeper, maxAttempts int) *Orchestrator {
	return New(gw, discardLogger(),
		WithModel("veo-test"),
		WithPollInterval(5*time.Second),
		WithMaxAttempts(maxAttempts),
		WithSleep(sleeper.Sleep),
	)
}

func doneWithURI(uri string) gateway.Operation {
	return gateway.Operation{
		Name:     "op1",
		Done:     true,
		Response: json.RawMessage(`{"generateVideoResponse":{"generatedSamples":[{"video":{"uri":"` + uri + `"}}]}}`),
	}
}

var notDone = gateway.Operation{Name: "op1", Done: false}

func TestGenerate_EmptyRequestMakesNoCalls(t *testing.T) {
	gw := &mockGateway{}
	o := newTestOrchestrator(gw, &fakeSleeper{}, 3)

	_, err := o.Generate(context.Background(), Request{})
	require.Error(t, err)

	var verr *Error
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, PhaseRejected, verr.Phase)
	assert.Equal(t, KindValidation, Classify(err))

	gw.AssertNotCalled(t, "StartOperation", mock.Anything, mock.Anything, mock.Anything)
	gw.AssertNotCalled(t, "PollOperation", mock.Anything, mock.Anything)
	gw.AssertNotCalled(t, "DownloadArtifact", mock.Anything, mock.Anything)
	assert.Empty(t, gw.Calls)
}

func TestGenerate_PollsExactlyUntilDone(t *testing.T) {
	for _, n := range []int{1, 2, 5, 10} {
		t.Run("", func(t *testing.T) {
			gw := &mockGateway{}
			sleeper := &fakeSleeper{}
			o := newTestOrchestrator(gw, sleeper, 20)

			gw.On("StartOperation", mock.Anything, "models/veo-test:predictLongRunning", mock.Anything).
				Return(gateway.Operation{Name: "op1"}, nil).Once()
			if n > 1 {
				gw.On("PollOperation", mock.Anything, "op1").Return(notDone, nil).Times(n - 1)
			}
			gw.On("PollOperation", mock.Anything, "op1").
				Return(doneWithURI("https://gw.example/v1beta/files/vid123:download?alt=media"), nil).Once()
			gw.On("DownloadArtifact", mock.Anything, "vid123").Return([]byte("video"), nil).Once()

			art, err := o.Generate(context.Background(), Request{Prompt: "a cat"})
			require.NoError(t, err)
			assert.Equal(t, "vid123", art.ID)
			assert.Equal(t, n, art.Operation.Attempts)
			assert.Equal(t, StateSucceeded, art.Operation.State)

			gw.AssertNumberOfCalls(t, "PollOperation", n)
			assert.Len(t, sleeper.calls, n)
			for _, d := range sleeper.calls {
				assert.Equal(t, 5*time.Second, d)
			}
			gw.AssertExpectations(t)
		})
	}
}

func TestGenerate_TimesOutAfterMaxAttempts(t *testing.T) {
	gw := &mockGateway{}
	sleeper := &fakeSleeper{}
	o := newTestOrchestrator(gw, sleeper, 7)

	gw.On("StartOperation", mock.Anything, mock.Anything, mock.Anything).Return(gateway.Operation{Name: "op1"}, nil)
	gw.On("PollOperation", mock.Anything, "op1").Return(notDone, nil)

	_, err := o.Generate(context.Background(), Request{Prompt: "a cat"})
	require.Error(t, err)

	var verr *Error
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, PhaseTimedOut, verr.Phase)
	assert.Equal(t, 7, verr.Attempts)
	assert.Equal(t, "op1", verr.Handle)
	assert.True(t, IsTimeout(err))
	assert.Equal(t, KindTimeout, Classify(err))

	gw.AssertNumberOfCalls(t, "PollOperation", 7)
	gw.AssertNotCalled(t, "DownloadArtifact", mock.Anything, mock.Anything)
	assert.Equal(t, 35*time.Second, o.Budget())
}

func TestGenerate_MissingVideoURIIsContractError(t *testing.T) {
	responses := map[string]string{
		"no samples":    `{"generateVideoResponse":{"generatedSamples":[]}}`,
		"no video":      `{"generateVideoResponse":{"generatedSamples":[{}]}}`,
		"no uri":        `{"generateVideoResponse":{"generatedSamples":[{"video":{"mimeType":"video/mp4"}}]}}`,
		"unknown shape": `{"somethingElse":true}`,
		"bad uri":       `{"generateVideoResponse":{"generatedSamples":[{"video":{"uri":"https://gw.example/v1beta/blobs/x"}}]}}`,
	}

	for name, body := range responses {
		t.Run(name, func(t *testing.T) {
			gw := &mockGateway{}
			o := newTestOrchestrator(gw, &fakeSleeper{}, 5)

			gw.On("StartOperation", mock.Anything, mock.Anything, mock.Anything).Return(gateway.Operation{Name: "op1"}, nil)
			gw.On("PollOperation", mock.Anything, "op1").
				Return(gateway.Operation{Name: "op1", Done: true, Response: json.RawMessage(body)}, nil).Once()

			_, err := o.Generate(context.Background(), Request{Prompt: "a cat"})
			require.Error(t, err)
			assert.Equal(t, KindContract, Classify(err))
			assert.True(t, gateway.IsContractError(err))
			assert.False(t, gateway.IsStatusError(err))
			assert.False(t, IsTimeout(err))

			var verr *Error
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, PhasePollFailed, verr.Phase)
			gw.AssertNumberOfCalls(t, "PollOperation", 1)
		})
	}
}

func TestGenerate_DoneWithoutResponseIsContractError(t *testing.T) {
	gw := &mockGateway{}
	o := newTestOrchestrator(gw, &fakeSleeper{}, 5)

	gw.On("StartOperation", mock.Anything, mock.Anything, mock.Anything).Return(gateway.Operation{Name: "op1"}, nil)
	gw.On("PollOperation", mock.Anything, "op1").Return(gateway.Operation{Name: "op1", Done: true}, nil)

	_, err := o.Generate(context.Background(), Request{Prompt: "a cat"})
	assert.Equal(t, KindContract, Classify(err))
}

func TestGenerate_StartServerError(t *testing.T) {
	gw := &mockGateway{}
	o := newTestOrchestrator(gw, &fakeSleeper{}, 5)

	gw.On("StartOperation", mock.Anything, mock.Anything, mock.Anything).
		Return(gateway.Operation{}, &gateway.StatusError{Op: "start operation", StatusCode: 500, Body: "boom"})

	_, err := o.Generate(context.Background(), Request{Prompt: "a cat"})
	require.Error(t, err)

	var se *gateway.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 500, se.StatusCode)
	assert.Equal(t, KindGateway, Classify(err))

	var verr *Error
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, PhaseStartFailed, verr.Phase)

	gw.AssertNotCalled(t, "PollOperation", mock.Anything, mock.Anything)
}

func TestGenerate_PollGatewayErrorIsNotRetried(t *testing.T) {
	gw := &mockGateway{}
	o := newTestOrchestrator(gw, &fakeSleeper{}, 10)

	gw.On("StartOperation", mock.Anything, mock.Anything, mock.Anything).Return(gateway.Operation{Name: "op1"}, nil)
	gw.On("PollOperation", mock.Anything, "op1").Return(notDone, nil).Twice()
	gw.On("PollOperation", mock.Anything, "op1").
		Return(gateway.Operation{}, &gateway.StatusError{Op: "poll operation", StatusCode: 503}).Once()

	_, err := o.Generate(context.Background(), Request{Prompt: "a cat"})
	var verr *Error
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, PhasePollFailed, verr.Phase)
	assert.Equal(t, 3, verr.Attempts)
	assert.Equal(t, KindGateway, Classify(err))
	gw.AssertNumberOfCalls(t, "PollOperation", 3)
}

func TestGenerate_RemoteOperationError(t *testing.T) {
	gw := &mockGateway{}
	o := newTestOrchestrator(gw, &fakeSleeper{}, 10)

	gw.On("StartOperation", mock.Anything, mock.Anything, mock.Anything).Return(gateway.Operation{Name: "op1"}, nil)
	gw.On("PollOperation", mock.Anything, "op1").Return(gateway.Operation{
		Name: "op1", Done: true, Error: &gateway.OperationStatus{Code: 3, Message: "prompt rejected"},
	}, nil)

	_, err := o.Generate(context.Background(), Request{Prompt: "a cat"})
	var oerr *OperationError
	require.ErrorAs(t, err, &oerr)
	assert.Equal(t, 3, oerr.Code)
	assert.Equal(t, KindOperation, Classify(err))
}

func TestGenerate_ContentFiltered(t *testing.T) {
	gw := &mockGateway{}
	o := newTestOrchestrator(gw, &fakeSleeper{}, 10)

	gw.On("StartOperation", mock.Anything, mock.Anything, mock.Anything).Return(gateway.Operation{Name: "op1"}, nil)
	gw.On("PollOperation", mock.Anything, "op1").Return(gateway.Operation{
		Name: "op1", Done: true,
		Response: json.RawMessage(`{"generateVideoResponse":{"raiMediaFilteredCount":1,"raiMediaFilteredReasons":["celebrity"]}}`),
	}, nil)

	_, err := o.Generate(context.Background(), Request{Prompt: "a cat"})
	assert.Equal(t, KindOperation, Classify(err))
	assert.Contains(t, err.Error(), "celebrity")
}

func TestGenerate_DownloadFailure(t *testing.T) {
	gw := &mockGateway{}
	o := newTestOrchestrator(gw, &fakeSleeper{}, 10)

	gw.On("StartOperation", mock.Anything, mock.Anything, mock.Anything).Return(gateway.Operation{Name: "op1"}, nil)
	gw.On("PollOperation", mock.Anything, "op1").Return(doneWithURI("https://gw.example/v1beta/files/vid123:download"), nil)
	gw.On("DownloadArtifact", mock.Anything, "vid123").
		Return(nil, &gateway.StatusError{Op: "download artifact", StatusCode: 404})

	_, err := o.Generate(context.Background(), Request{Prompt: "a cat"})
	var verr *Error
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, PhaseDownloadFailed, verr.Phase)
	assert.Equal(t, KindGateway, Classify(err))
}

func TestGenerate_TransportErrorIsGatewayKind(t *testing.T) {
	gw := &mockGateway{}
	o := newTestOrchestrator(gw, &fakeSleeper{}, 10)

	gw.On("StartOperation", mock.Anything, mock.Anything, mock.Anything).
		Return(gateway.Operation{}, errors.New("dial tcp: connection refused"))

	_, err := o.Generate(context.Background(), Request{Prompt: "a cat"})
	assert.Equal(t, KindGateway, Classify(err))
}

func TestGenerate_InlineBytesSkipDownload(t *testing.T) {
	gw := &mockGateway{}
	o := newTestOrchestrator(gw, &fakeSleeper{}, 10)

	payload := base64.StdEncoding.EncodeToString([]byte("inline-video"))
	gw.On("StartOperation", mock.Anything, mock.Anything, mock.Anything).
		Return(gateway.Operation{Name: "projects/p/operations/abc"}, nil)
	gw.On("PollOperation", mock.Anything, "projects/p/operations/abc").Return(gateway.Operation{
		Name: "projects/p/operations/abc", Done: true,
		Response: json.RawMessage(`{"videos":[{"bytesBase64Encoded":"` + payload + `","mimeType":"video/mp4"}]}`),
	}, nil)

	art, err := o.Generate(context.Background(), Request{Prompt: "a cat"})
	require.NoError(t, err)
	assert.Equal(t, []byte("inline-video"), art.Data)
	assert.Equal(t, "abc", art.ID)
	assert.Equal(t, ".mp4", art.Extension)
	gw.AssertNotCalled(t, "DownloadArtifact", mock.Anything, mock.Anything)
}

func TestGenerate_StartAlreadyDone(t *testing.T) {
	gw := &mockGateway{}
	o := newTestOrchestrator(gw, &fakeSleeper{}, 10)

	gw.On("StartOperation", mock.Anything, mock.Anything, mock.Anything).
		Return(doneWithURI("https://gw.example/v1beta/files/fast:download"), nil)
	gw.On("DownloadArtifact", mock.Anything, "fast").Return([]byte("v"), nil)

	art, err := o.Generate(context.Background(), Request{Prompt: "a cat"})
	require.NoError(t, err)
	assert.Equal(t, 0, art.Operation.Attempts)
	gw.AssertNotCalled(t, "PollOperation", mock.Anything, mock.Anything)
}

func TestGenerate_CanceledBetweenPolls(t *testing.T) {
	gw := &mockGateway{}
	ctx, cancel := context.WithCancel(context.Background())

	var sleeps int
	o := New(gw, discardLogger(), WithMaxAttempts(10), WithSleep(func(ctx context.Context, d time.Duration) error {
		sleeps++
		if sleeps == 3 {
			cancel()
			return ctx.Err()
		}
		return nil
	}))

	gw.On("StartOperation", mock.Anything, mock.Anything, mock.Anything).Return(gateway.Operation{Name: "op1"}, nil)
	gw.On("PollOperation", mock.Anything, "op1").Return(notDone, nil)

	_, err := o.Generate(ctx, Request{Prompt: "a cat"})
	var verr *Error
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, PhaseCanceled, verr.Phase)
	assert.Equal(t, KindCanceled, Classify(err))
	gw.AssertNumberOfCalls(t, "PollOperation", 2)
}

func TestGenerate_SendsNormalizedPayload(t *testing.T) {
	gw := &mockGateway{}
	o := newTestOrchestrator(gw, &fakeSleeper{}, 1)

	gw.On("StartOperation", mock.Anything, mock.Anything, mock.MatchedBy(func(p any) bool {
		sp, ok := p.(startPayload)
		if !ok || len(sp.Instances) != 1 {
			return false
		}
		return sp.Instances[0].Prompt == "a cat" &&
			sp.Instances[0].Image != nil &&
			sp.Instances[0].Image.MimeType == "image/png" &&
			sp.Parameters.DurationSeconds == 8 &&
			sp.Parameters.AspectRatio == "16:9" &&
			sp.Parameters.PersonGeneration == "allow_adult" &&
			len(sp.Parameters.ReferenceImages) == 1 &&
			sp.Parameters.ReferenceImages[0].ReferenceType == "asset"
	})).Return(gateway.Operation{}, &gateway.StatusError{StatusCode: 400}).Once()

	_, err := o.Generate(context.Background(), Request{
		Prompt:           "a cat",
		AspectRatio:      AspectPortrait,
		DurationSeconds:  4,
		PersonGeneration: PersonAllowAll,
		FirstFrame:       &Image{Data: pngBytes},
		ReferenceImages:  []Image{{Data: pngBytes}},
	})
	require.Error(t, err)
	gw.AssertExpectations(t)
}

// TestGenerate_EndToEnd drives the orchestrator against a real HTTP gateway
// client backed by httptest.
func TestGenerate_EndToEnd(t *testing.T) {
	var polls, downloads atomic.Int32
	payload := []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/v1beta/models/veo-test:predictLongRunning"):
			var body startPayload
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "a cat", body.Instances[0].Prompt)
			assert.Equal(t, "16:9", body.Parameters.AspectRatio)
			assert.Equal(t, 8, body.Parameters.DurationSeconds)
			_, _ = io.WriteString(w, `{"name":"op1"}`)
		case r.Method == http.MethodGet && r.URL.Path == "/gemini/v1beta/op1":
			polls.Add(1)
			_, _ = io.WriteString(w, `{"name":"op1","done":true,"response":{"generateVideoResponse":{"generatedSamples":[{"video":{"uri":"https://generativelanguage.googleapis.com/v1beta/files/vid123:download?alt=media"}}]}}}`)
		case r.Method == http.MethodGet && r.URL.Path == "/gemini/download/v1beta/files/vid123:download":
			downloads.Add(1)
			_, _ = w.Write(payload)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client, err := gateway.NewClient(server.URL, gateway.WithAPIKey("test-key"))
	require.NoError(t, err)

	o := New(client, discardLogger(), WithModel("veo-test"), WithSleep((&fakeSleeper{}).Sleep))

	art, err := o.Generate(context.Background(), Request{Prompt: "a cat", AspectRatio: "16:9", DurationSeconds: 8})
	require.NoError(t, err)
	assert.Len(t, art.Data, 10)
	assert.Equal(t, "vid123", art.ID)
	assert.Equal(t, ".mp4", art.Extension)
	assert.Equal(t, "vid123.mp4", art.FileName())
	assert.Equal(t, int32(1), polls.Load())
	assert.Equal(t, int32(1), downloads.Load())
}

func TestArtifactIDFromURI(t *testing.T) {
	tests := []struct {
		uri     string
		want    string
		wantErr bool
	}{
		{"https://generativelanguage.googleapis.com/v1beta/files/vid123:download?alt=media", "vid123", false},
		{"https://gw.example/gemini/download/v1beta/files/abc", "abc", false},
		{"files/xyz:download", "xyz", false},
		{"https://gw.example/v1beta/files/", "", true},
		{"https://gw.example/v1beta/files/:download", "", true},
		{"gs://bucket/videos/sample_0.mp4", "", true},
		{"://bad", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			got, err := ArtifactIDFromURI(tt.uri)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, gateway.IsContractError(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
