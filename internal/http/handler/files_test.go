package handler

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"btcarts/internal/logging"
	"btcarts/internal/model"
	"btcarts/internal/service"
	serviceMocks "btcarts/internal/service/mocks"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type blobStub struct{}

func (blobStub) Locate(_ context.Context, id string) (model.BlobInfo, error) {
	return model.BlobInfo{ID: id, Filename: "a.txt", Length: 2}, nil
}

func (blobStub) OpenReadStream(context.Context, string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("ok")), nil
}

type closeTracker struct {
	io.Reader
	closed atomic.Bool
}

func (c *closeTracker) Close() error {
	c.closed.Store(true)
	return nil
}

func TestAdminFileSpanKeepsID(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(prev)

	svc := service.NewFileDeliveryService(nil, blobStub{}, nil)
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/api/grants/files/:id", AdminFile(svc, newRecorder(), logging.Discard()))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go app.Listener(ln)
	defer app.Shutdown()

	client := &http.Client{Transport: &http.Transport{MaxConnsPerHost: 1}}
	defer client.CloseIdleConnections()

	want := map[string]bool{}
	for i := 1; i <= 20; i++ {
		id := fmt.Sprintf("%024x", i)
		want[id] = true

		resp, err := client.Get("http://" + ln.Addr().String() + "/api/grants/files/" + id)
		require.NoError(t, err)
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, "ok", string(body))
	}

	require.NoError(t, tp.ForceFlush(context.Background()))
	require.NoError(t, tp.Shutdown(context.Background()))

	got := map[string]bool{}
	for _, s := range exp.GetSpans() {
		for _, kv := range s.Attributes {
			if kv.Key == "file.id" {
				got[kv.Value.AsString()] = true
			}
		}
	}
	assert.Equal(t, want, got)
}

func TestSendDeliveryClosesBody(t *testing.T) {
	tests := []struct {
		name   string
		length int64
	}{
		{name: "known length", length: 5},
		{name: "unknown length", length: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockSvc := new(serviceMocks.MockFileDeliveryService)
			app := fiber.New()
			app.Get("/api/grants/files/:id", AdminFile(mockSvc, newRecorder(), logging.Discard()))

			body := &closeTracker{Reader: strings.NewReader("%PDF-")}
			mockSvc.On("AdminFile", mock.Anything, fileID).Return(&service.Delivery{
				Info: model.BlobInfo{ID: fileID, Length: tt.length},
				Body: body,
			}, nil).Once()

			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/grants/files/"+fileID, nil))
			require.NoError(t, err)

			got, _ := io.ReadAll(resp.Body)
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, "%PDF-", string(got))
			assert.True(t, body.closed.Load())
			mockSvc.AssertExpectations(t)
		})
	}
}
