package main

import (
	"bufio"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"
	"github.com/rotisserie/eris"
	"github.com/yeka/zip"
	"go.uber.org/zap"
)

// Security configuration constants
const (
	MaxFileSizeBytes    = 50 * 1024 * 1024  // 50MB limit
	MaxZipFiles         = 100               // Maximum files in ZIP archive
	MaxUncompressedSize = 100 * 1024 * 1024 // 100MB uncompressed limit
	MaxCompressionRatio = 100               // 100:1 compression ratio limit
	MaxHeaderLength     = 1000              // Maximum logged header length
)

// DefaultZipPassword is the customary password of malware sample archives
const DefaultZipPassword = "infected"

// emlMarker must appear somewhere in the email path
const emlMarker = ".eml"

// MessageMeta holds informational headers of the loaded message
type MessageMeta struct {
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`
	Subject   string `json:"subject,omitempty"`
	Date      string `json:"date,omitempty"`
	MessageID string `json:"message_id,omitempty"`
}

// Document is the text of one email file
type Document struct {
	Path string      `json:"path"`
	Text string      `json:"-"`
	Meta MessageMeta `json:"message"`
}

// loadEmail reads the email at path. Paths ending in .zip are archives whose
// first .eml entry is read, decrypting it with zipPassword when needed.
func loadEmail(path, zipPassword string, logger *zap.Logger) (*Document, error) {
	if !strings.Contains(path, emlMarker) {
		return nil, inputError(eris.Errorf("file has wrong extension, you have to choose %q file: %s", emlMarker, path))
	}

	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, inputError(eris.Errorf("file not found, check your path or choose another file: %s", path))
		}
		return nil, inputError(eris.Wrapf(err, "failed to open email file %s", path))
	}
	defer func() { _ = f.Close() }()

	stat, err := f.Stat()
	if err != nil {
		return nil, inputError(eris.Wrap(err, "failed to stat email file"))
	}
	if !stat.Mode().IsRegular() {
		return nil, inputError(eris.Errorf("not a regular file: %s", path))
	}
	if stat.Size() > MaxFileSizeBytes {
		return nil, inputError(eris.Errorf("file size %d exceeds maximum allowed size of %d bytes (50MB)",
			stat.Size(), MaxFileSizeBytes))
	}

	var data []byte
	if strings.EqualFold(filepath.Ext(path), ".zip") {
		data, err = extractEmailFromZip(f, stat.Size(), zipPassword)
		if err != nil {
			return nil, inputError(eris.Wrapf(err, "failed to extract email from %s", path))
		}
	} else {
		data, err = io.ReadAll(io.LimitReader(f, MaxFileSizeBytes))
		if err != nil {
			return nil, inputError(eris.Wrapf(err, "failed to read email file %s", path))
		}
	}

	if !utf8.Valid(data) {
		return nil, inputError(eris.Errorf("email content has incorrect type: %s is not UTF-8 text", path))
	}
	logger.Debug("Email file opened", zap.String("path", path), zap.Int("bytes", len(data)))

	doc := &Document{
		Path: path,
		Text: normalizeNewlines(string(data)),
	}
	doc.Meta = readMessageMeta(doc.Text, logger)
	return doc, nil
}

// extractEmailFromZip returns the first entry whose name contains ".eml"
func extractEmailFromZip(r io.ReaderAt, size int64, password string) ([]byte, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, eris.Wrap(err, "failed to open ZIP archive")
	}

	// Check number of files in ZIP to prevent zip bombs
	if len(zr.File) > MaxZipFiles {
		return nil, eris.Errorf("zip contains too many files: %d (max %d)", len(zr.File), MaxZipFiles)
	}

	for _, f := range zr.File {
		if !strings.Contains(strings.ToLower(f.Name), emlMarker) {
			continue
		}

		if f.UncompressedSize64 > 0 && f.CompressedSize64 > 0 {
			ratio := f.UncompressedSize64 / f.CompressedSize64
			if ratio > MaxCompressionRatio {
				return nil, eris.Errorf("suspicious compression ratio detected: %d:1 (max %d:1)",
					ratio, MaxCompressionRatio)
			}
		}
		if f.UncompressedSize64 > MaxUncompressedSize {
			return nil, eris.Errorf("uncompressed file too large: %d bytes (max %d)",
				f.UncompressedSize64, MaxUncompressedSize)
		}

		if f.IsEncrypted() {
			f.SetPassword(password)
		}
		rc, err := f.Open()
		if err != nil {
			return nil, eris.Wrapf(err, "failed to open %s in archive", f.Name)
		}
		data, err := func() ([]byte, error) {
			defer func() { _ = rc.Close() }()
			return io.ReadAll(io.LimitReader(rc, MaxUncompressedSize))
		}()
		if err != nil {
			return nil, eris.Wrapf(err, "failed to read %s in archive (wrong password?)", f.Name)
		}
		return data, nil
	}

	return nil, eris.New("no .eml entry found in ZIP archive")
}

// normalizeNewlines converts CRLF and lone CR line endings to LF
func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// readMessageMeta parses the leading header block for log context. Parse
// failures are logged and leave the metadata empty.
func readMessageMeta(text string, logger *zap.Logger) MessageMeta {
	th, err := textproto.ReadHeader(bufio.NewReader(bytes.NewReader([]byte(text))))
	if err != nil {
		logger.Debug("Email header block not parseable", zap.Error(err))
		return MessageMeta{}
	}
	h := mail.Header{Header: message.Header{Header: th}}

	meta := MessageMeta{
		From:      headerText(h, "From"),
		To:        headerText(h, "To"),
		Subject:   headerText(h, "Subject"),
		Date:      headerText(h, "Date"),
		MessageID: headerText(h, "Message-Id"),
	}
	if id, err := h.MessageID(); err == nil && id != "" {
		meta.MessageID = id
	}

	logger.Info("Email loaded",
		zap.String("from", meta.From),
		zap.String("subject", meta.Subject),
		zap.String("message_id", meta.MessageID),
	)
	return meta
}

// headerText decodes a header value, falling back to the raw value when the
// encoded words cannot be decoded.
func headerText(h mail.Header, key string) string {
	v, err := h.Text(key)
	if err != nil {
		v = h.Get(key)
	}
	return sanitizeHeader(v)
}

// sanitizeHeader strips control characters and bounds the value length
func sanitizeHeader(value string) string {
	value = strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' {
			return -1
		}
		return r
	}, value)

	if len(value) > MaxHeaderLength {
		cut := MaxHeaderLength
		for cut > 0 && !utf8.RuneStart(value[cut]) {
			cut--
		}
		value = value[:cut]
	}
	return strings.TrimSpace(value)
}
