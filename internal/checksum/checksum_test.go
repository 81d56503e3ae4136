package checksum

import (
	"testing"
	"testing/fstest"
)

func TestEqual(t *testing.T) {
	data := []byte(`{"text":"hi"}`)
	sum := Sum(data)

	if len(sum) != 64 {
		t.Errorf("len(Sum) = %d, want 64", len(sum))
	}
	if !Equal(sum, data) {
		t.Error("sum does not match its own data")
	}
	if Equal(sum, []byte(`{"text":"bye"}`)) {
		t.Error("sum matches different data")
	}
	if Equal("", data) {
		t.Error("empty sum must never match")
	}
}

func TestFileMatchesSum(t *testing.T) {
	data := []byte(`{"subject":"https://example.com","vote":1}`)
	fsys := fstest.MapFS{"votes/a.json": {Data: data}}

	got, err := File(fsys, "votes/a.json")
	if err != nil {
		t.Fatal(err)
	}
	if got != Sum(data) {
		t.Errorf("File = %s, Sum = %s", got, Sum(data))
	}
	if _, err := File(fsys, "votes/missing.json"); err == nil {
		t.Error("expected error for missing file")
	}
}
