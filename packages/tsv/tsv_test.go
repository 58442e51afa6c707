package tsv

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"
)

func shiftJIS(t *testing.T, s string) []byte {
	t.Helper()
	out, _, err := transform.Bytes(japanese.ShiftJIS.NewEncoder(), []byte(s))
	require.NoError(t, err)
	return out
}

func TestRead(t *testing.T) {
	t.Run("utf-8", func(t *testing.T) {
		table, err := Read([]byte("a\tb\n=A1&\"x\"\t\n"), ReadOptions{})
		require.NoError(t, err)
		assert.Equal(t, EncodingUTF8, table.Encoding)
		assert.Equal(t, [][]string{{"a", "b"}, {`=A1&"x"`, ""}}, table.Rows)
	})

	t.Run("byte order mark", func(t *testing.T) {
		table, err := Read([]byte("\xef\xbb\xbf氏名\t時間\r\n"), ReadOptions{})
		require.NoError(t, err)
		assert.Equal(t, [][]string{{"氏名", "時間"}}, table.Rows)
	})

	t.Run("shift_jis fallback", func(t *testing.T) {
		data := shiftJIS(t, "プロジェクト\t工数\nP001\t8\n")
		table, err := Read(data, ReadOptions{})
		require.NoError(t, err)
		assert.Equal(t, EncodingShiftJIS, table.Encoding)
		assert.Equal(t, [][]string{{"プロジェクト", "工数"}, {"P001", "8"}}, table.Rows)
	})

	t.Run("explicit shift_jis", func(t *testing.T) {
		table, err := Read(shiftJIS(t, "社員"), ReadOptions{Encoding: "CP932"})
		require.NoError(t, err)
		assert.Equal(t, [][]string{{"社員"}}, table.Rows)
	})

	t.Run("explicit utf-8 rejects other bytes", func(t *testing.T) {
		_, err := Read(shiftJIS(t, "社員"), ReadOptions{Encoding: EncodingUTF8})
		assert.ErrorIs(t, err, ErrInvalidUTF8)
	})

	t.Run("latin1", func(t *testing.T) {
		table, err := Read([]byte("caf\xe9"), ReadOptions{Encoding: EncodingLatin1})
		require.NoError(t, err)
		assert.Equal(t, [][]string{{"café"}}, table.Rows)
	})

	t.Run("unknown encoding", func(t *testing.T) {
		_, err := Read([]byte("x"), ReadOptions{Encoding: "ebcdic"})
		assert.ErrorIs(t, err, ErrUnknownEncoding)
	})

	t.Run("header", func(t *testing.T) {
		table, err := Read([]byte("name\thours\nsato\t7.5\n"), ReadOptions{SkipHeader: true})
		require.NoError(t, err)
		assert.Equal(t, [][]string{{"sato", "7.5"}}, table.Rows)

		table, err = Read(nil, ReadOptions{SkipHeader: true})
		require.NoError(t, err)
		assert.Empty(t, table.Rows)
	})

	t.Run("ragged rows and quotes", func(t *testing.T) {
		table, err := Read([]byte("a\n\"b\tc\"\td\te\nsay \"hi\"\n"), ReadOptions{})
		require.NoError(t, err)
		assert.Equal(t, [][]string{{"a"}, {"b\tc", "d", "e"}, {`say "hi"`}}, table.Rows)
	})
}

func TestWrite(t *testing.T) {
	rows := [][]string{{"1", "tab\there", ""}, {`q"uote`, "line\nbreak", "田中"}}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, rows))
	assert.Equal(t, "1\t\"tab\there\"\t\n\"q\"\"uote\"\t\"line\nbreak\"\t田中\n", buf.String())

	path := filepath.Join(t.TempDir(), "out", "result.tsv")
	require.NoError(t, WriteFile(path, rows))

	table, err := ReadFile(path, ReadOptions{Encoding: EncodingUTF8})
	require.NoError(t, err)
	assert.Equal(t, rows, table.Rows)
}

func TestReadFileMissing(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "missing.tsv"), ReadOptions{})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestErrorArtifact(t *testing.T) {
	assert.Equal(t, "out/Project_List_error.tsv", ErrorArtifactPath("out/Project_List.tsv"))
	assert.Equal(t, "report_error.tsv", ErrorArtifactPath("report"))
	assert.Equal(t, "book_error.tsv", ErrorArtifactPath("book.xlsx"))

	output := filepath.Join(t.TempDir(), "nested", "Staff_List.tsv")
	path, err := WriteErrorArtifact(output, "circular reference detected at Sheet1!R1C1\nsecond line\n")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(filepath.Dir(output), "Staff_List_error.tsv"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "circular reference detected at Sheet1!R1C1\nsecond line\n", string(data))
}
