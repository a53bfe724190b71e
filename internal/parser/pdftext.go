package parser

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// ExtractPDFText pulls the text content out of a PDF, row by row. Encrypted
// documents are decrypted with pdfcpu first when a password is supplied;
// without one, ErrPasswordRequired is returned so the session can pause and
// ask for it.
func ExtractPDFText(data []byte, password string) (string, error) {
	if password != "" {
		plain, err := decryptPDF(data, password)
		if err != nil {
			return "", err
		}
		data = plain
	}

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		if isEncryptionError(err) {
			return "", ErrPasswordRequired
		}
		return "", fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}

	var sb strings.Builder
	for pageIndex := 1; pageIndex <= r.NumPage(); pageIndex++ {
		page := r.Page(pageIndex)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			// A single unreadable page should not sink the document.
			continue
		}
		for _, row := range rows {
			for i, word := range row.Content {
				if i > 0 {
					sb.WriteString(" ")
				}
				sb.WriteString(word.S)
			}
			sb.WriteString("\n")
		}
	}
	return sb.String(), nil
}

// decryptPDF rewrites an encrypted PDF as a plain one using the supplied user
// password. A wrong password surfaces as ErrPasswordRequired, which the
// orchestrator counts against the attempt budget.
func decryptPDF(data []byte, password string) ([]byte, error) {
	conf := model.NewDefaultConfiguration()
	conf.UserPW = password

	var out bytes.Buffer
	if err := api.Decrypt(bytes.NewReader(data), &out, conf); err != nil {
		if isEncryptionError(err) {
			return nil, ErrPasswordRequired
		}
		// Not encrypted at all: the password was superfluous, keep the
		// original bytes.
		if strings.Contains(strings.ToLower(err.Error()), "not encrypted") {
			return data, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	return out.Bytes(), nil
}

func isEncryptionError(err error) bool {
	if errors.Is(err, pdf.ErrInvalidPassword) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "encrypted") || strings.Contains(msg, "password")
}
