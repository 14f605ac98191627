package directory

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"

	"github.com/WailSalutem-Health-Care/user-directory/internal/users"
)

// Multipart form field names shared by client and server
const (
	FieldCurrentUsername = "currentUsername"
	FieldFirstName       = "firstName"
	FieldLastName        = "lastName"
	FieldUsername        = "username"
	FieldEmail           = "email"
	FieldRole            = "role"
	FieldActive          = "isActive"
	FieldNotLocked       = "isNonLocked"
	FieldProfileImage    = "profileImage"
)

// MaxImageBytes caps uploaded profile images on the server side
const MaxImageBytes = 10 << 20

func encodeSubmission(sub users.Submission) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := []struct{ name, value string }{
		{FieldFirstName, sub.FirstName},
		{FieldLastName, sub.LastName},
		{FieldUsername, sub.Username},
		{FieldEmail, sub.Email},
		{FieldRole, string(sub.Role)},
		{FieldActive, strconv.FormatBool(sub.Active)},
		{FieldNotLocked, strconv.FormatBool(sub.NotLocked)},
	}
	if sub.CurrentUsername != "" {
		fields = append([]struct{ name, value string }{{FieldCurrentUsername, sub.CurrentUsername}}, fields...)
	}
	for _, f := range fields {
		if err := w.WriteField(f.name, f.value); err != nil {
			return nil, "", fmt.Errorf("failed to write field %s: %w", f.name, err)
		}
	}
	if sub.ProfileImage != nil {
		if err := writeImage(w, sub.ProfileImage); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart body: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

func writeImage(w *multipart.Writer, img *users.ProfileImage) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		FieldProfileImage, escapeQuotes(img.Filename)))
	contentType := img.ContentType
	if contentType == "" {
		contentType = http.DetectContentType(img.Data)
	}
	h.Set("Content-Type", contentType)

	part, err := w.CreatePart(h)
	if err != nil {
		return fmt.Errorf("failed to create image part: %w", err)
	}
	if _, err := part.Write(img.Data); err != nil {
		return fmt.Errorf("failed to write image: %w", err)
	}
	return nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

// ParseSubmission reads a create/update form from r
func ParseSubmission(r *http.Request) (users.Submission, error) {
	if err := r.ParseMultipartForm(MaxImageBytes); err != nil {
		return users.Submission{}, fmt.Errorf("failed to parse form: %w", err)
	}
	sub := users.Submission{
		CurrentUsername: r.FormValue(FieldCurrentUsername),
		FirstName:       r.FormValue(FieldFirstName),
		LastName:        r.FormValue(FieldLastName),
		Username:        r.FormValue(FieldUsername),
		Email:           r.FormValue(FieldEmail),
		Role:            users.Role(r.FormValue(FieldRole)),
		Active:          r.FormValue(FieldActive) == "true",
		NotLocked:       r.FormValue(FieldNotLocked) == "true",
	}
	img, err := ParseImage(r)
	if err != nil {
		return users.Submission{}, err
	}
	sub.ProfileImage = img
	return sub, nil
}

// ParseImage returns the profileImage part, or nil when the form has none.
// The form must already be parsed.
func ParseImage(r *http.Request) (*users.ProfileImage, error) {
	if r.MultipartForm == nil {
		if err := r.ParseMultipartForm(MaxImageBytes); err != nil {
			return nil, fmt.Errorf("failed to parse form: %w", err)
		}
	}
	files := r.MultipartForm.File[FieldProfileImage]
	if len(files) == 0 {
		return nil, nil
	}
	fh := files[0]
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, MaxImageBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	return &users.ProfileImage{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}
