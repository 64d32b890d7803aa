package api

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"os"
	"strconv"
	"time"

	"inpass/internal/domain"
)

// Multipart field names expected by the absence endpoints.
const (
	fieldType        = "Type"
	fieldStartDate   = "StartDate"
	fieldEndDate     = "EndDate"
	fieldDeclaration = "DeclarationToDean"
	fieldAttachment  = "Attachment"
)

// encodeDraft renders a draft as the multipart body of POST/PUT
// /absences. Dates go out as RFC 3339 with an explicit zone, whatever
// format the form used while editing; the attachment, when present, is
// read from its local URI and sent as a binary part.
func encodeDraft(draft domain.Draft) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField(fieldType, string(draft.Type)); err != nil {
		return nil, "", fmt.Errorf("write type: %w", err)
	}
	if err := w.WriteField(fieldStartDate, draft.StartDate.Format(time.RFC3339)); err != nil {
		return nil, "", fmt.Errorf("write start date: %w", err)
	}
	if draft.EndDate != nil {
		if err := w.WriteField(fieldEndDate, draft.EndDate.Format(time.RFC3339)); err != nil {
			return nil, "", fmt.Errorf("write end date: %w", err)
		}
	}
	if err := w.WriteField(fieldDeclaration, strconv.FormatBool(draft.DeclarationToDean)); err != nil {
		return nil, "", fmt.Errorf("write declaration: %w", err)
	}

	// A document with a local URI is pending upload; one without is a
	// server-side reference the backend already holds, so no part is
	// sent and the stored attachment stays in place.
	if draft.Attachment != nil && draft.Attachment.URI != "" {
		if err := writeAttachment(w, draft.Attachment); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

func writeAttachment(w *multipart.Writer, doc *domain.Document) error {
	file, err := os.Open(doc.URI)
	if err != nil {
		return fmt.Errorf("open attachment: %w", err)
	}
	defer file.Close()

	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, fieldAttachment, doc.Name))
	contentType := doc.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)

	part, err := w.CreatePart(header)
	if err != nil {
		return fmt.Errorf("create attachment part: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("copy attachment: %w", err)
	}
	return nil
}
