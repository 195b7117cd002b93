package handlers

import (
	"encoding/base64"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/rcwells1879/veilpix-sub000/internal/domain"
	"github.com/rcwells1879/veilpix-sub000/internal/middleware"
)

const (
	maxUploadBytes   = 32 << 20
	maxCombineImages = 8
	defaultProvider  = "gemini"
)

type imageResponse struct {
	Data     string `json:"data"`
	MIMEType string `json:"mimeType"`
}

type generationResponse struct {
	Success          bool           `json:"success"`
	Image            imageResponse  `json:"image"`
	ProcessingTime   int64          `json:"processingTime"`
	CreditsRemaining *int           `json:"creditsRemaining,omitempty"`
	Usage            map[string]any `json:"usage,omitempty"`
}

// ImagesEdit applies a localized change, optionally anchored at a focal
// point.
func (a *App) ImagesEdit(w http.ResponseWriter, r *http.Request) {
	form, ok := a.parseForm(w, r)
	if !ok {
		return
	}
	source, ok := a.readSingleImage(w, form)
	if !ok {
		return
	}
	prompt := strings.TrimSpace(form.Value("prompt"))
	if prompt == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "prompt is required")
		return
	}
	intent := domain.GenerationIntent{
		Kind:        domain.KindEdit,
		Sources:     []domain.SourceImage{source},
		Instruction: prompt,
		FocalX:      form.Float("focalX"),
		FocalY:      form.Float("focalY"),
		AspectRatio: strings.TrimSpace(form.Value("aspectRatio")),
		Resolution:  strings.TrimSpace(form.Value("resolution")),
		RequestID:   middleware.RequestIDFromContext(r.Context()),
	}
	a.generate(w, r, form.Provider(), intent)
}

// ImagesFilter applies a global style to the whole image.
func (a *App) ImagesFilter(w http.ResponseWriter, r *http.Request) {
	form, ok := a.parseForm(w, r)
	if !ok {
		return
	}
	source, ok := a.readSingleImage(w, form)
	if !ok {
		return
	}
	style := strings.TrimSpace(form.Value("style"))
	if style == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "style is required")
		return
	}
	intent := domain.GenerationIntent{
		Kind:        domain.KindFilter,
		Sources:     []domain.SourceImage{source},
		Instruction: style,
		RequestID:   middleware.RequestIDFromContext(r.Context()),
	}
	a.generate(w, r, form.Provider(), intent)
}

// ImagesAdjust applies a global property change described in free text.
func (a *App) ImagesAdjust(w http.ResponseWriter, r *http.Request) {
	form, ok := a.parseForm(w, r)
	if !ok {
		return
	}
	source, ok := a.readSingleImage(w, form)
	if !ok {
		return
	}
	instruction := strings.TrimSpace(form.Value("instruction"))
	if instruction == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "instruction is required")
		return
	}
	intent := domain.GenerationIntent{
		Kind:        domain.KindAdjust,
		Sources:     []domain.SourceImage{source},
		Instruction: instruction,
		RequestID:   middleware.RequestIDFromContext(r.Context()),
	}
	a.generate(w, r, form.Provider(), intent)
}

// ImagesCombine merges multiple source images under one prompt.
func (a *App) ImagesCombine(w http.ResponseWriter, r *http.Request) {
	form, ok := a.parseForm(w, r)
	if !ok {
		return
	}
	headers := form.Files("images")
	if len(headers) < 2 {
		a.error(w, http.StatusBadRequest, "bad_request", "combine requires at least 2 images")
		return
	}
	if len(headers) > maxCombineImages {
		a.error(w, http.StatusBadRequest, "bad_request", "too many images")
		return
	}
	sources := make([]domain.SourceImage, 0, len(headers))
	for _, header := range headers {
		source, err := readImage(header)
		if err != nil {
			a.error(w, http.StatusBadRequest, "bad_request", "failed to read image upload")
			return
		}
		sources = append(sources, source)
	}
	prompt := strings.TrimSpace(form.Value("prompt"))
	if prompt == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "prompt is required")
		return
	}
	intent := domain.GenerationIntent{
		Kind:        domain.KindCombine,
		Sources:     sources,
		Instruction: prompt,
		AspectRatio: strings.TrimSpace(form.Value("aspectRatio")),
		Resolution:  strings.TrimSpace(form.Value("resolution")),
		RequestID:   middleware.RequestIDFromContext(r.Context()),
	}
	a.generate(w, r, form.Provider(), intent)
}

// generate runs the orchestrator and writes the HTTP result.
func (a *App) generate(w http.ResponseWriter, r *http.Request, provider string, intent domain.GenerationIntent) {
	caller := a.callerFromRequest(r)
	outcome, err := a.Orchestrator.Generate(r.Context(), caller, provider, intent)
	if err != nil {
		a.writeGenerationError(w, err)
		return
	}

	resp := generationResponse{
		Success: true,
		Image: imageResponse{
			Data:     base64.StdEncoding.EncodeToString(outcome.Result.Data),
			MIMEType: outcome.Result.MIME,
		},
		ProcessingTime: outcome.Duration.Milliseconds(),
	}
	if caller.Authenticated() {
		if outcome.Remaining >= 0 {
			remaining := outcome.Remaining
			resp.CreditsRemaining = &remaining
		}
	} else {
		resp.Usage = map[string]any{
			"limit":     a.Config.AnonymousQuota,
			"remaining": outcome.Remaining,
		}
	}
	a.json(w, http.StatusOK, resp)
}

// requestForm wraps the parsed multipart form.
type requestForm struct {
	form *multipart.Form
}

func (a *App) parseForm(w http.ResponseWriter, r *http.Request) (*requestForm, bool) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid multipart form")
		return nil, false
	}
	return &requestForm{form: r.MultipartForm}, true
}

func (f *requestForm) Value(key string) string {
	if vals := f.form.Value[key]; len(vals) > 0 {
		return vals[0]
	}
	return ""
}

func (f *requestForm) Float(key string) *float64 {
	raw := strings.TrimSpace(f.Value(key))
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	return &v
}

func (f *requestForm) Files(key string) []*multipart.FileHeader {
	return f.form.File[key]
}

func (f *requestForm) Provider() string {
	if p := strings.TrimSpace(f.Value("provider")); p != "" {
		return strings.ToLower(p)
	}
	return defaultProvider
}

func (a *App) readSingleImage(w http.ResponseWriter, form *requestForm) (domain.SourceImage, bool) {
	headers := form.Files("image")
	if len(headers) == 0 {
		a.error(w, http.StatusBadRequest, "bad_request", "image file is required")
		return domain.SourceImage{}, false
	}
	source, err := readImage(headers[0])
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "failed to read image upload")
		return domain.SourceImage{}, false
	}
	return source, true
}

func readImage(header *multipart.FileHeader) (domain.SourceImage, error) {
	file, err := header.Open()
	if err != nil {
		return domain.SourceImage{}, err
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return domain.SourceImage{}, err
	}
	mime := header.Header.Get("Content-Type")
	if mime == "" || mime == "application/octet-stream" {
		mime = http.DetectContentType(data)
	}
	return domain.SourceImage{Data: data, MIME: mime, Name: header.Filename}, nil
}
