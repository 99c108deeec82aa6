package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"
)

// ErrEmptySnapshot is returned when a snapshot holds no usable study records.
var ErrEmptySnapshot = errors.New("catalog snapshot has no usable studies")

// Source provides read access to the study catalog.
type Source interface {
	Load(ctx context.Context) (*Studies, error)
}

// FileSource reads a JSON snapshot from disk. The first successful load is cached
// since the snapshot is immutable for the process lifetime.
type FileSource struct {
	path   string
	logger *zap.Logger

	mu     sync.Mutex
	cached *Studies
}

func NewFileSource(path string, logger *zap.Logger) *FileSource {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &FileSource{
		path:   path,
		logger: logger,
	}
}

func (s *FileSource) Load(ctx context.Context) (*Studies, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != nil {
		return s.cached, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog snapshot %q: %w", s.path, err)
	}

	var items []map[string]any
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("parsing catalog snapshot %q: %w", s.path, err)
	}

	studies := Decode(items, s.logger)
	if studies.Len() == 0 {
		return nil, ErrEmptySnapshot
	}

	s.logger.Info("catalog snapshot loaded",
		zap.String("path", s.path),
		zap.Int("records", len(items)),
		zap.Int("studies", studies.Len()),
	)

	s.cached = studies
	return studies, nil
}

type staticSource struct {
	studies *Studies
}

// NewStatic returns a Source serving the given records as-is.
func NewStatic(studies ...*Study) Source {
	return &staticSource{studies: &Studies{Items: studies}}
}

func (s *staticSource) Load(context.Context) (*Studies, error) {
	return s.studies, nil
}

// Decode converts loosely typed snapshot records into studies. Records that cannot be
// decoded or carry no identifier are skipped; duplicate identifiers keep the first entry.
func Decode(items []map[string]any, logger *zap.Logger) *Studies {
	if logger == nil {
		logger = zap.NewNop()
	}

	studies := &Studies{Items: make([]*Study, 0, len(items))}
	seen := make(map[string]struct{}, len(items))

	for idx, item := range items {
		study, err := decodeStudy(item)
		if err != nil {
			logger.Warn("skipping malformed catalog record", zap.Int("index", idx), zap.Error(err))
			continue
		}

		id := study.TrialID()
		if id == "" {
			logger.Debug("skipping catalog record without nct_id", zap.Int("index", idx))
			continue
		}

		if _, ok := seen[id]; ok {
			logger.Debug("skipping duplicate catalog record", zap.String("nct_id", id))
			continue
		}

		seen[id] = struct{}{}
		studies.Items = append(studies.Items, study)
	}

	return studies
}

func decodeStudy(item map[string]any) (*Study, error) {
	var study Study

	cfg := &mapstructure.DecoderConfig{
		Result:           &study,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			joinListHook,
			ageHook,
		),
	}

	decoder, err := mapstructure.NewDecoder(cfg)
	if err != nil {
		return nil, err
	}

	if err := decoder.Decode(item); err != nil {
		return nil, err
	}

	return &study, nil
}

var intPtrType = reflect.TypeOf((*int)(nil))

// ageHook turns age values such as 17, "17", "18 Years" or "N/A" into *int.
// Anything unparseable becomes nil so the record falls back to permissive defaults.
func ageHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != intPtrType {
		return data, nil
	}

	switch v := data.(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, nil
		}
		n := int(v)
		return &n, nil
	case int:
		return &v, nil
	case string:
		if n := parseAge(v); n != nil {
			return n, nil
		}
		return nil, nil
	default:
		return nil, nil
	}
}

func parseAge(s string) *int {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return nil
	}

	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return nil
	}
	return &n
}

// joinListHook flattens list values (e.g. several conditions) into a single string field.
func joinListHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to.Kind() != reflect.String || from.Kind() != reflect.Slice {
		return data, nil
	}

	list, ok := data.([]any)
	if !ok {
		return data, nil
	}

	parts := make([]string, 0, len(list))
	for _, el := range list {
		if el == nil {
			continue
		}
		if str := strings.TrimSpace(fmt.Sprintf("%v", el)); str != "" {
			parts = append(parts, str)
		}
	}

	return strings.Join(parts, ", "), nil
}
