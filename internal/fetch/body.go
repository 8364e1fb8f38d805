package fetch

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/url"
	"strings"
)

const (
	contentTypeText = "text/plain;charset=UTF-8"
	contentTypeForm = "application/x-www-form-urlencoded;charset=UTF-8"
)

// EncodeBody turns a call body into a reader plus the content type a browser
// would default to for it. A nil body yields a nil reader.
func EncodeBody(body any) (io.Reader, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, "", nil
	case string:
		return strings.NewReader(b), contentTypeText, nil
	case []byte:
		return bytes.NewReader(b), "", nil
	case url.Values:
		return strings.NewReader(b.Encode()), contentTypeForm, nil
	case *multipart.Form:
		return encodeMultipart(b)
	case io.Reader:
		return b, "", nil
	default:
		return nil, "", fmt.Errorf("unsupported body type %T", body)
	}
}

func encodeMultipart(form *multipart.Form) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, values := range form.Value {
		for _, v := range values {
			if err := mw.WriteField(name, v); err != nil {
				return nil, "", err
			}
		}
	}
	for name, files := range form.File {
		for _, fh := range files {
			if err := copyFormFile(mw, name, fh); err != nil {
				return nil, "", err
			}
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}

func copyFormFile(mw *multipart.Writer, field string, fh *multipart.FileHeader) error {
	src, err := fh.Open()
	if err != nil {
		return fmt.Errorf("open form file %s: %w", fh.Filename, err)
	}
	defer src.Close()
	dst, err := mw.CreateFormFile(field, fh.Filename)
	if err != nil {
		return err
	}
	_, err = io.Copy(dst, src)
	return err
}
