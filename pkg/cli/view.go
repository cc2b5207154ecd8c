package cli

import (
	"errors"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/mchmarny/churnctl/pkg/config"
	"github.com/mchmarny/churnctl/pkg/failure"
	"github.com/mchmarny/churnctl/pkg/pipeline"
	"github.com/mchmarny/churnctl/pkg/score"
	"github.com/mchmarny/churnctl/pkg/store"
)

const reportPreviewRows = 25

var templateFuncs = template.FuncMap{
	"pct": func(v float64) float64 { return v * 100 },
	"inc": func(i int) int { return i + 1 },
}

type formField struct {
	score.Field
	Value string
}

type homePage struct {
	Version     string
	Metrics     *store.Metrics
	Report      []score.Risk
	ReportTotal int
	Model       string
	Fields      []formField
	Tiers       config.Tiers
	Prediction  *score.Prediction
	Error       string
}

func homeViewHandler(tmpl *template.Template, cfg *config.Config, st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, p := loadPage(cfg, st)
		if p != nil {
			page.Fields = formFields(cfg, p, nil)
		}
		render(w, tmpl, http.StatusOK, page)
	}
}

func predictViewHandler(tmpl *template.Template, cfg *config.Config, st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
		if err := r.ParseForm(); err != nil {
			http.Error(w, "invalid form", http.StatusBadRequest)
			return
		}
		record := make(map[string]string, len(r.PostForm))
		for k := range r.PostForm {
			record[k] = r.PostForm.Get(k)
		}

		page, p := loadPage(cfg, st)
		if p == nil {
			page.Error = "no trained model: run churnctl train first"
			render(w, tmpl, http.StatusServiceUnavailable, page)
			return
		}

		pred, filled, err := predictRecord(cfg, p, record)
		page.Fields = formFields(cfg, p, filled)
		if err != nil {
			page.Error = err.Error()
			render(w, tmpl, statusFor(err), page)
			return
		}
		page.Prediction = pred
		render(w, tmpl, http.StatusOK, page)
	}
}

// loadPage reads every artifact the page shows. Missing ones leave their
// section empty; the returned pipeline is nil when no model is available.
func loadPage(cfg *config.Config, st *store.Store) (*homePage, *pipeline.Fitted) {
	page := &homePage{Version: version, Tiers: cfg.Tiers}

	if m, err := st.LoadMetrics(); err == nil {
		page.Metrics = m
	} else {
		logLoadError(err)
	}

	if list, err := st.LoadReport(); err == nil {
		page.ReportTotal = len(list)
		page.Report = list[:min(len(list), reportPreviewRows)]
	} else {
		logLoadError(err)
	}

	p, err := st.LoadPipeline()
	if err != nil {
		logLoadError(err)
		return page, nil
	}
	page.Model = p.Name
	return page, p
}

func logLoadError(err error) {
	if errors.Is(err, failure.ErrArtifactMissing) {
		slog.Debug("artifact unavailable", "error", err)
		return
	}
	slog.Error("failed to load artifact", "error", err)
}

// predictRecord fills unset fields with their defaults, validates the
// record, and scores it.
func predictRecord(cfg *config.Config, p *pipeline.Fitted, record map[string]string) (*score.Prediction, map[string]string, error) {
	fields := score.Form(p, cfg.Dashboard.Ranges)
	filled := score.WithDefaults(fields, record)
	if err := score.Validate(fields, filled); err != nil {
		return nil, filled, err
	}
	pred, err := score.Predict(p, filled, cfg.Tiers)
	if err != nil {
		return nil, filled, err
	}
	return pred, filled, nil
}

func formFields(cfg *config.Config, p *pipeline.Fitted, values map[string]string) []formField {
	fields := score.Form(p, cfg.Dashboard.Ranges)
	out := make([]formField, len(fields))
	for i, f := range fields {
		v, ok := values[f.Name]
		if !ok {
			v = f.Default
		}
		out[i] = formField{Field: f, Value: v}
	}
	return out
}

func render(w http.ResponseWriter, tmpl *template.Template, status int, page *homePage) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := tmpl.ExecuteTemplate(w, "home", page); err != nil {
		slog.Error("template render failed", "error", err)
	}
}
