package e2e

import (
	"net/http"
	"strings"
	"testing"

	"github.com/imgtranslate/api/internal/model"
)

func TestTranslate_Success(t *testing.T) {
	ta := setupApp(t)

	resp := mustRequest(t, ta.app, http.MethodPost, "/api/translate", imageBody("hello", "page1.png"))
	assertStatus(t, resp, http.StatusOK)

	var rec model.TranslationRecord
	decodeJSON(t, resp, &rec)

	if rec.ID == 0 {
		t.Error("expected id in response")
	}
	if string(rec.OriginalImage) != "hello" {
		t.Errorf("originalImage = %q", rec.OriginalImage)
	}
	if string(rec.TranslatedImage) != "translated:hello" {
		t.Errorf("translatedImage = %q", rec.TranslatedImage)
	}
	if rec.OriginalFilename != "page1.png" {
		t.Errorf("originalFilename = %q", rec.OriginalFilename)
	}
	if rec.FileSize != 5 {
		t.Errorf("fileSize = %d, want 5", rec.FileSize)
	}
}

func TestTranslate_DataURLAndDefaultFilename(t *testing.T) {
	ta := setupApp(t)

	body := `{"image":"data:image/jpeg;base64,` + b64("x") + `"}`
	resp := mustRequest(t, ta.app, http.MethodPost, "/api/translate", body)
	assertStatus(t, resp, http.StatusOK)

	var rec model.TranslationRecord
	decodeJSON(t, resp, &rec)
	if rec.OriginalFilename != "untitled" {
		t.Errorf("originalFilename = %q, want untitled", rec.OriginalFilename)
	}
}

func TestTranslate_MissingImage(t *testing.T) {
	ta := setupApp(t)

	resp := mustRequest(t, ta.app, http.MethodPost, "/api/translate", `{"filename":"a.png"}`)
	assertStatus(t, resp, http.StatusBadRequest)
	if code := errorCode(t, resp); code != "VALIDATION_ERROR" {
		t.Errorf("code = %s, want VALIDATION_ERROR", code)
	}
}

func TestTranslate_InvalidBase64(t *testing.T) {
	ta := setupApp(t)

	resp := mustRequest(t, ta.app, http.MethodPost, "/api/translate", `{"image":"***"}`)
	assertStatus(t, resp, http.StatusBadRequest)
}

func TestTranslate_DataURLNonImageRejected(t *testing.T) {
	ta := setupApp(t)

	body := `{"image":"data:text/html;base64,` + b64("<b>hi</b>") + `"}`
	resp := mustRequest(t, ta.app, http.MethodPost, "/api/translate", body)
	assertStatus(t, resp, http.StatusBadRequest)

	n, err := ta.store.Count(testContext(t))
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("history count = %d, want 0", n)
	}
}

func TestTranslate_ProviderRejects(t *testing.T) {
	ta := setupApp(t)

	resp := mustRequest(t, ta.app, http.MethodPost, "/api/translate", imageBody(failImage, "blank.png"))
	assertStatus(t, resp, http.StatusBadGateway)

	body := parseJSON(t, resp)
	errObj := body["error"].(map[string]interface{})
	if errObj["message"] != "No text found in image" {
		t.Errorf("message = %v", errObj["message"])
	}

	n, err := ta.store.Count(testContext(t))
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("history has %d records after a failed translation", n)
	}
}

func TestTranslate_ProviderNotConfigured(t *testing.T) {
	ta := setupAppWithKey(t, "")

	resp := mustRequest(t, ta.app, http.MethodPost, "/api/translate", imageBody("hello", "a.png"))
	assertStatus(t, resp, http.StatusServiceUnavailable)
	if code := errorCode(t, resp); code != "PROVIDER_UNAVAILABLE" {
		t.Errorf("code = %s, want PROVIDER_UNAVAILABLE", code)
	}
}

func TestTranslateBatch_PartialFailure(t *testing.T) {
	ta := setupApp(t)

	resp := mustRequest(t, ta.app, http.MethodPost, "/api/translate/batch", batchBody("one", failImage, "three"))
	assertStatus(t, resp, http.StatusOK)

	var report model.BatchReport
	decodeJSON(t, resp, &report)

	if report.Total != 3 || report.Completed != 3 {
		t.Errorf("total/completed = %d/%d, want 3/3", report.Total, report.Completed)
	}
	if len(report.Results) != 2 {
		t.Fatalf("results = %d, want 2", len(report.Results))
	}
	if report.Results[0].OriginalFilename != "one.png" || report.Results[1].OriginalFilename != "three.png" {
		t.Errorf("results out of order: %s, %s", report.Results[0].OriginalFilename, report.Results[1].OriginalFilename)
	}
	if len(report.Errors) != 1 || !strings.HasPrefix(report.Errors[0], "fail.png: ") {
		t.Errorf("errors = %v", report.Errors)
	}
}

func TestTranslateBatch_AllFailStill200(t *testing.T) {
	ta := setupAppWithKey(t, "")

	resp := mustRequest(t, ta.app, http.MethodPost, "/api/translate/batch", batchBody("a", "b"))
	assertStatus(t, resp, http.StatusOK)

	var report model.BatchReport
	decodeJSON(t, resp, &report)
	if len(report.Results) != 0 || len(report.Errors) != 2 {
		t.Errorf("results/errors = %d/%d, want 0/2", len(report.Results), len(report.Errors))
	}
	if report.Results == nil {
		t.Error("results should be an empty array, not null")
	}
}

func TestTranslateBatch_EmptyImages(t *testing.T) {
	ta := setupApp(t)

	for _, body := range []string{`{"images":[]}`, `{}`} {
		resp := mustRequest(t, ta.app, http.MethodPost, "/api/translate/batch", body)
		assertStatus(t, resp, http.StatusBadRequest)
		resp.Body.Close()
	}
}

func TestTranslateBatch_InvalidItemRejectsWholeBatch(t *testing.T) {
	ta := setupApp(t)

	body := `{"images":[` + imageBody("ok", "ok.png") + `,{"image":"","filename":"empty.png"}]}`
	resp := mustRequest(t, ta.app, http.MethodPost, "/api/translate/batch", body)
	assertStatus(t, resp, http.StatusBadRequest)

	n, err := ta.store.Count(testContext(t))
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("no item should be processed for invalid input, got %d records", n)
	}
}

func TestTranslate_SingleMatchesBatch(t *testing.T) {
	ta := setupApp(t)

	resp := mustRequest(t, ta.app, http.MethodPost, "/api/translate", imageBody("same", "same.png"))
	var single model.TranslationRecord
	decodeJSON(t, resp, &single)

	resp = mustRequest(t, ta.app, http.MethodPost, "/api/translate/batch", batchBody("same"))
	var report model.BatchReport
	decodeJSON(t, resp, &report)
	if len(report.Results) != 1 {
		t.Fatalf("results = %d, want 1", len(report.Results))
	}

	batch := report.Results[0]
	if string(single.TranslatedImage) != string(batch.TranslatedImage) ||
		single.OriginalFilename != batch.OriginalFilename ||
		single.FileSize != batch.FileSize {
		t.Errorf("single %+v differs from batch %+v", single, batch)
	}
}
