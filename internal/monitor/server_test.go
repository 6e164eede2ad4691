package monitor

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"tixbot/internal/logbus"
	"tixbot/internal/model"
)

func TestStatusEndpoint(t *testing.T) {
	bus := logbus.New(16)
	srv := New(Options{
		Bus: bus,
		Report: func() model.StatusReport {
			return model.StatusReport{State: model.StateWaiting, EventURL: "https://tixcraft.com/activity/detail/25_test"}
		},
		AllowOrigins: []string{"*"},
	})

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/status")
	if err != nil {
		t.Fatalf("请求出错：%v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("状态码 = %d", resp.StatusCode)
	}

	var body struct {
		Data model.StatusReport `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("解析响应出错：%v", err)
	}
	if body.Data.State != model.StateWaiting {
		t.Fatalf("状态 = %s，期望 waiting", body.Data.State)
	}
}

func TestLogsEndpointReturnsSnapshot(t *testing.T) {
	bus := logbus.New(16)
	bus.Log("info", "测试消息", nil)
	srv := New(Options{Bus: bus, Report: func() model.StatusReport { return model.StatusReport{} }})

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/logs")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var body struct {
		Data []logbus.Message `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if len(body.Data) != 1 || body.Data[0].Type != "log" {
		t.Fatalf("日志快照不对：%+v", body.Data)
	}
}

func TestCORSRejectsUnknownOrigin(t *testing.T) {
	bus := logbus.New(16)
	srv := New(Options{
		Bus:          bus,
		Report:       func() model.StatusReport { return model.StatusReport{} },
		AllowOrigins: []string{"http://localhost:5173"},
	})

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/status", nil)
	req.Header.Set("Origin", "http://evil.example")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("未允许的来源不应带 CORS 头，得到 %q", got)
	}
}

func TestRunsEndpointWithoutStore(t *testing.T) {
	bus := logbus.New(16)
	srv := New(Options{Bus: bus, Report: func() model.StatusReport { return model.StatusReport{} }})

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/runs")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("状态码 = %d", resp.StatusCode)
	}
}
