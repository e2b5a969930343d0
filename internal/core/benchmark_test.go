package core

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// ============================================================================
// Conversion Function Benchmarks
// ============================================================================

// BenchmarkParseID benchmarks identifier parsing.
// Every record of every source goes through it at least once.
func BenchmarkParseID(b *testing.B) {
	testCases := []string{
		"tt0000001",
		"nm9999999",
		"tt12345678",
		"xx",       // No digits
		"tt12ab34", // Non-numeric
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for _, tc := range testCases {
			ParseID(tc)
		}
	}
}

// BenchmarkNullInt benchmarks nullable integer conversion.
func BenchmarkNullInt(b *testing.B) {
	testCases := []string{"1999", `\N`, "", " 90 ", "abc"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for _, tc := range testCases {
			NullInt(tc)
		}
	}
}

// BenchmarkNullFloat benchmarks rating conversion.
func BenchmarkNullFloat(b *testing.B) {
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		NullFloat("7.5")
	}
}

// BenchmarkSplitMulti benchmarks multi-value field splitting.
func BenchmarkSplitMulti(b *testing.B) {
	testCases := []string{
		"Drama",
		"Action,Adventure,Sci-Fi",
		"tt0000001,tt0000002,tt0000003,tt0000004",
		`\N`,
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for _, tc := range testCases {
			SplitMulti(tc)
		}
	}
}

// BenchmarkConversionsAllocs reports allocations for a full film row.
func BenchmarkConversionsAllocs(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		id, _ := ParseID("tt0123456")
		_ = FormatID(id)
		_, _ = Flag("0")
		_, _ = NullInt("1999")
		_, _ = NullInt(`\N`)
		_ = NullText("  A Title  ")
	}
}

// ============================================================================
// Index Benchmarks
// ============================================================================

// BenchmarkIDSet_Contains benchmarks referential lookups against a large set.
func BenchmarkIDSet_Contains(b *testing.B) {
	s := NewIDSet()
	for i := int32(1); i <= 1_000_000; i += 3 {
		s.Add(i)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.Contains(int32(i % 1_000_000))
	}
}

// BenchmarkPairSet_Add benchmarks person-film deduplication.
func BenchmarkPairSet_Add(b *testing.B) {
	p := NewPairSet()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		p.Add(int32(i%50_000), int32(i%7_919))
	}
}

// ============================================================================
// Stream Benchmarks
// ============================================================================

// BenchmarkRecordStream benchmarks reading a tab separated source.
func BenchmarkRecordStream(b *testing.B) {
	path := filepath.Join(b.TempDir(), "title.basics.tsv")
	if err := os.WriteFile(path, generateTestTSV(10_000), 0o644); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s, err := OpenStream(path, StreamOptions{Delimiter: '\t'})
		if err != nil {
			b.Fatal(err)
		}
		for {
			_, _, err := s.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				b.Fatal(err)
			}
		}
		s.Close()
	}
}

// BenchmarkSanitizeUTF8_LargeDataset benchmarks the sanitizer on clean input.
func BenchmarkSanitizeUTF8_LargeDataset(b *testing.B) {
	data := generateTestTSV(10_000)
	b.SetBytes(int64(len(data)))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		io.Copy(io.Discard, NewUTF8Sanitizer(bytes.NewReader(data)))
	}
}

// generateTestTSV builds a title.basics style file with rows data rows.
func generateTestTSV(rows int) []byte {
	var b strings.Builder
	b.WriteString("tconst\ttitleType\tprimaryTitle\tisAdult\tstartYear\truntimeMinutes\tgenres\n")
	for i := 1; i <= rows; i++ {
		fmt.Fprintf(&b, "tt%07d\tmovie\tTitle %d\t0\t%d\t%d\tDrama,Comedy\n", i, i, 1900+i%120, 60+i%90)
	}
	return []byte(b.String())
}
