package logger

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/Aamir1055/BrokerEye-sub005/pkg/config"
)

func TestNew_InvalidLevel(t *testing.T) {
	if _, err := New(&config.LoggingConfig{Level: "loud", Format: "text", Output: "stderr"}); err == nil {
		t.Fatal("New() error = nil, want invalid level error")
	}
}

func TestTransport_DoesNotLogAuthorization(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer srv.Close()

	var buf bytes.Buffer
	log := logrus.New()
	log.SetOutput(&buf)
	log.SetLevel(logrus.DebugLevel)
	log.SetFormatter(&logrus.JSONFormatter{})

	client := &http.Client{Transport: Transport(log, nil)}
	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/broker/clients", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	req.Header.Set("X-Request-ID", "req-1")

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	resp.Body.Close()

	out := buf.String()
	if strings.Contains(out, "secret-token") {
		t.Errorf("log output leaks the bearer token: %s", out)
	}
	for _, want := range []string{`"status":418`, `"request_id":"req-1"`, `"/api/broker/clients"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %s: %s", want, out)
		}
	}
}
