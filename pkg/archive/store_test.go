package archive

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "dataset.jsonl"))
	require.NoError(t, err)
	return s
}

func TestAppendAndReadBack(t *testing.T) {
	s := newTestStore(t)

	rec := Record{
		URL:      StringOrNil("https://x.com/a.jpg"),
		Data:     "Bitcoin hits $50k",
		Platform: "Twitter",
		Author:   StringOrNil("John"),
	}
	require.NoError(t, s.Append(rec))

	records, err := s.Records()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, rec, records[0])
}

func TestNullableFields(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Append(Record{
		URL:      nil,
		Data:     "本周市场综述",
		Platform: "Telegram",
		Author:   nil,
	}))

	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"url":null`)
	assert.Contains(t, string(data), `"author":null`)
}

func TestNAppendsYieldNRecords(t *testing.T) {
	s := newTestStore(t)

	const n = 25
	for i := 0; i < n; i++ {
		require.NoError(t, s.Append(Record{
			Data:     fmt.Sprintf("record %d", i),
			Platform: "Telegram",
		}))
	}

	count, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, n, count)
}

func TestConcurrentAppendsAllParseable(t *testing.T) {
	s := newTestStore(t)

	const n = 100
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = s.Append(Record{
				Data:     fmt.Sprintf("concurrent %d", i),
				Platform: "Feishu",
			})
		}(i)
	}
	wg.Wait()

	// Every line must be a self-contained JSON object.
	f, err := os.Open(s.Path())
	require.NoError(t, err)
	defer f.Close()

	lines := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec Record
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		lines++
	}
	require.NoError(t, scanner.Err())
	assert.Equal(t, n, lines)
}

func TestEarlierRecordsUntouchedByLaterAppends(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Append(Record{Data: "first", Platform: "Twitter"}))
	firstSnapshot, err := os.ReadFile(s.Path())
	require.NoError(t, err)

	require.NoError(t, s.Append(Record{Data: "second", Platform: "Twitter"}))
	after, err := os.ReadFile(s.Path())
	require.NoError(t, err)

	assert.Equal(t, string(firstSnapshot), string(after[:len(firstSnapshot)]))
}

func TestRecordsOnMissingFile(t *testing.T) {
	s, err := NewStore(filepath.Join(t.TempDir(), "never-written.jsonl"))
	require.NoError(t, err)

	records, err := s.Records()
	require.NoError(t, err)
	assert.Empty(t, records)
}
