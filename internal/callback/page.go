package callback

import (
	"encoding/json"
	"html/template"
	"net/http"
)

// resultPage is a terminal page: it posts the flow outcome to the window
// that opened the popup, then closes itself. The message payload mirrors
// what the catalog UI listens for.
var resultPage = template.Must(template.New("result").Parse(`<!DOCTYPE html>
<html>
<head><title>{{.Title}}</title></head>
<body>
<p>{{.Body}}</p>
<script>
  if (window.opener) {
    window.opener.postMessage({{.Payload}}, "*");
  }
  window.close();
</script>
</body>
</html>
`))

type pageData struct {
	Title   string
	Body    string
	Payload template.JS
}

func (h *Handler) renderResult(w http.ResponseWriter, providerName string, success bool, detail string) {
	payload, err := json.Marshal(map[string]interface{}{
		"type":     "oauth-complete",
		"provider": providerName,
		"success":  success,
	})
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	title := "Connection complete"
	body := "Authorization finished. You can close this window."
	if !success {
		title = "Connection failed"
		body = detail
		if body == "" {
			body = "Authorization failed. You can close this window and retry."
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := resultPage.Execute(w, pageData{
		Title:   title,
		Body:    body,
		Payload: template.JS(payload), //nolint:gosec // payload is built from marshaled JSON, not user input
	}); err != nil {
		h.logger.Error("Failed to render callback page")
	}
}
