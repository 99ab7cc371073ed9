// Package csvio reads recipient lists and writes run reports as CSV.
package csvio

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/kursadbilgin/mailrunner/internal/domain"
	"github.com/kursadbilgin/mailrunner/internal/fsutil"
)

const reportFileMode = 0o644

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

type resultRow struct {
	Timestamp      string `csv:"timestamp"`
	RecipientEmail string `csv:"recipient_email"`
	RecipientName  string `csv:"recipient_name"`
	Success        bool   `csv:"success"`
	ErrorMessage   string `csv:"error_message"`
}

// failureRow columns double as a recipients file for a retry pass.
type failureRow struct {
	Name  string `csv:"name"`
	Email string `csv:"email"`
	Error string `csv:"error"`
}

// LoadRecipients reads a recipients CSV file. The header must contain an
// email column; every other column is passed through as a template field.
func LoadRecipients(path string) ([]domain.Recipient, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open recipients %s: %w", path, err)
	}
	defer file.Close()

	recipients, err := ReadRecipients(file)
	if err != nil {
		return nil, fmt.Errorf("read recipients %s: %w", path, err)
	}
	return recipients, nil
}

// ReadRecipients parses recipients CSV. Short rows are padded with empty
// fields and extra cells beyond the header are ignored, so one ragged line
// does not reject the whole file.
func ReadRecipients(r io.Reader) ([]domain.Recipient, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	content = bytes.TrimPrefix(content, utf8BOM)
	if len(bytes.TrimSpace(content)) == 0 {
		return nil, nil
	}

	reader := csv.NewReader(bytes.NewReader(content))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: header: %v", domain.ErrValidation, err)
	}
	hasEmail := false
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
		if header[i] == "email" {
			hasEmail = true
		}
	}
	if !hasEmail {
		return nil, fmt.Errorf("%w: missing email column", domain.ErrValidation)
	}

	var recipients []domain.Recipient
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
		}

		row := make(map[string]string, len(header))
		for i, key := range header {
			if i < len(record) {
				row[key] = record[i]
			} else {
				row[key] = ""
			}
		}
		recipients = append(recipients, domain.RecipientFromRecord(row))
	}

	return recipients, nil
}

// WriteResults writes one row per delivery result, in order.
func WriteResults(path string, results []domain.DeliveryResult) error {
	var buf bytes.Buffer
	if err := EncodeResults(&buf, results); err != nil {
		return err
	}
	if err := fsutil.WriteFileAtomic(path, buf.Bytes(), reportFileMode); err != nil {
		return fmt.Errorf("write results %s: %w", path, err)
	}
	return nil
}

func EncodeResults(w io.Writer, results []domain.DeliveryResult) error {
	rows := make([]resultRow, 0, len(results))
	for _, result := range results {
		rows = append(rows, resultRow{
			Timestamp:      result.Timestamp.UTC().Format(time.RFC3339),
			RecipientEmail: result.RecipientEmail,
			RecipientName:  result.RecipientName,
			Success:        result.Success,
			ErrorMessage:   result.ErrorMessage,
		})
	}
	if err := gocsv.Marshal(rows, w); err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	return nil
}

// WriteFailures writes the failure list. Callers skip it when empty.
func WriteFailures(path string, failures []domain.FailureRecord) error {
	var buf bytes.Buffer
	if err := EncodeFailures(&buf, failures); err != nil {
		return err
	}
	if err := fsutil.WriteFileAtomic(path, buf.Bytes(), reportFileMode); err != nil {
		return fmt.Errorf("write failures %s: %w", path, err)
	}
	return nil
}

func EncodeFailures(w io.Writer, failures []domain.FailureRecord) error {
	rows := make([]failureRow, 0, len(failures))
	for _, failure := range failures {
		rows = append(rows, failureRow{
			Name:  failure.Name,
			Email: failure.Email,
			Error: failure.Error,
		})
	}
	if err := gocsv.Marshal(rows, w); err != nil {
		return fmt.Errorf("encode failures: %w", err)
	}
	return nil
}
