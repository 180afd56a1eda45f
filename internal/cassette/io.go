package cassette

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Write serializes a cassette under dir, grouped in a date-stamped
// subdirectory, and returns the path written. The date comes from the
// session's recorded_at timestamp so re-serializing an old cassette does not
// move it to today's directory.
func Write(c *Cassette, dir string, compression Compression) (string, error) {
	data, err := Encode(c, compression)
	if err != nil {
		return "", err
	}

	recordedAt := time.Now()
	if t, err := time.Parse(time.RFC3339, c.Session.RecordedAt); err == nil {
		recordedAt = t
	}

	route := c.Request.RouteTemplate
	if route == "" {
		route = c.Request.Path
	}

	outDir := filepath.Join(dir, DateDirectory(recordedAt))
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("cassette: create directory: %w", err)
	}

	path := filepath.Join(outDir, Filename(c.Request.Method, route, c.Session.ID, compression))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("cassette: write %s: %w", path, err)
	}
	return path, nil
}

// Encode serializes a cassette to bytes, gzip-wrapped when requested.
func Encode(c *Cassette, compression Compression) ([]byte, error) {
	raw, err := json.MarshalIndent(c.ToMap(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("cassette: marshal: %w", err)
	}
	raw = append(raw, '\n')

	if compression != CompressionGzip {
		return raw, nil
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return nil, fmt.Errorf("cassette: compress: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("cassette: compress: %w", err)
	}
	return buf.Bytes(), nil
}

// Read loads a cassette from disk. Compression is detected from the .gz
// suffix. The schema version must be in the supported set; older versions
// are migrated forward before typed reconstruction.
func Read(path string) (*Cassette, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &NotFoundError{Path: path}
		}
		return nil, fmt.Errorf("cassette: read %s: %w", path, err)
	}

	c, err := Decode(raw, strings.HasSuffix(path, ".gz"))
	if err != nil {
		var se *SchemaError
		if errors.As(err, &se) {
			se.Path = path
			return nil, se
		}
		return nil, fmt.Errorf("cassette: %s: %w", path, err)
	}
	return c, nil
}

// Decode parses serialized cassette bytes, decompressing first when
// compressed is set.
func Decode(raw []byte, compressed bool) (*Cassette, error) {
	if compressed {
		zr, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("decompress: %w", err)
		}
		raw, err = io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("decompress: %w", err)
		}
		if err := zr.Close(); err != nil {
			return nil, fmt.Errorf("decompress: %w", err)
		}
	}

	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}

	version := asString(data["schema_version"])
	if !SchemaVersionSupported(version) {
		return nil, &SchemaError{Actual: version, Allowed: SupportedSchemaVersions}
	}

	return FromMap(Migrate(data))
}
