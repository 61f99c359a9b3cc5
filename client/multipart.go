package client

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"strings"

	"github.com/saiset-co/sai-food-admin/types"
)

type FormField struct {
	Name  string
	Value string
}

type FormFile struct {
	Field       string
	Filename    string
	ContentType string
	Data        []byte
}

// MultipartForm keeps field order so encoded bodies are reproducible.
type MultipartForm struct {
	Fields []FormField
	Files  []FormFile
}

func (f *MultipartForm) AddField(name, value string) *MultipartForm {
	f.Fields = append(f.Fields, FormField{Name: name, Value: value})
	return f
}

func (f *MultipartForm) AddFile(file FormFile) *MultipartForm {
	f.Files = append(f.Files, file)
	return f
}

func (f *MultipartForm) Encode() ([]byte, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	for _, field := range f.Fields {
		if err := writer.WriteField(field.Name, field.Value); err != nil {
			return nil, "", types.WrapError(err, "failed to write form field")
		}
	}

	for _, file := range f.Files {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
			escapeQuotes(file.Field), escapeQuotes(file.Filename)))

		contentType := file.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		header.Set("Content-Type", contentType)

		part, err := writer.CreatePart(header)
		if err != nil {
			return nil, "", types.WrapError(err, "failed to create form file")
		}
		if _, err = part.Write(file.Data); err != nil {
			return nil, "", types.WrapError(err, "failed to write form file")
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", types.WrapError(err, "failed to close multipart writer")
	}

	return buf.Bytes(), writer.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
