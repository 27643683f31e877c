package storage

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	s.hashCost = 4 // bcrypt.MinCost keeps the tests fast
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUsers(t *testing.T) {
	s := openTestStore(t)

	if err := s.CreateUser("ada", "secret1"); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if err := s.CreateUser("ada", "other"); !errors.Is(err, ErrUserExists) {
		t.Errorf("duplicate CreateUser = %v, want ErrUserExists", err)
	}

	if err := s.VerifyUser("ada", "secret1"); err != nil {
		t.Errorf("VerifyUser with correct password failed: %v", err)
	}
	if err := s.VerifyUser("ada", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("VerifyUser with wrong password = %v, want ErrInvalidCredentials", err)
	}
	if err := s.VerifyUser("nobody", "secret1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("VerifyUser for unknown user = %v, want ErrInvalidCredentials", err)
	}
}

func TestPrograms(t *testing.T) {
	s := openTestStore(t)

	first, err := s.SaveProgram("ada", "hello", `"hi" writeln`)
	if err != nil {
		t.Fatalf("SaveProgram failed: %v", err)
	}
	if first.ID == "" {
		t.Fatal("SaveProgram should assign an id")
	}

	updated, err := s.SaveProgram("ada", "hello", `"hello" writeln`)
	if err != nil {
		t.Fatalf("second SaveProgram failed: %v", err)
	}
	if updated.ID != first.ID {
		t.Errorf("saving under the same name created a new program: %s != %s", updated.ID, first.ID)
	}

	if _, err := s.SaveProgram("ada", "add", "2 3 + writeln"); err != nil {
		t.Fatalf("SaveProgram failed: %v", err)
	}
	if _, err := s.SaveProgram("bob", "hello", "1 writeln"); err != nil {
		t.Fatalf("SaveProgram failed: %v", err)
	}

	got, err := s.GetProgram("ada", first.ID)
	if err != nil {
		t.Fatalf("GetProgram failed: %v", err)
	}
	if got.Source != `"hello" writeln` {
		t.Errorf("Source = %q, want the updated source", got.Source)
	}

	if _, err := s.GetProgram("bob", first.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetProgram for another owner = %v, want ErrNotFound", err)
	}

	list, err := s.ListPrograms("ada")
	if err != nil {
		t.Fatalf("ListPrograms failed: %v", err)
	}
	if len(list) != 2 || list[0].Name != "add" || list[1].Name != "hello" {
		t.Errorf("ListPrograms = %+v, want add and hello", list)
	}
	if list[0].Source != "" {
		t.Error("ListPrograms should not return sources")
	}

	if err := s.DeleteProgram("ada", first.ID); err != nil {
		t.Fatalf("DeleteProgram failed: %v", err)
	}
	if err := s.DeleteProgram("ada", first.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second DeleteProgram = %v, want ErrNotFound", err)
	}
}

func TestRuns(t *testing.T) {
	s := openTestStore(t)

	p, err := s.SaveProgram("ada", "loop", "while true do end")
	if err != nil {
		t.Fatalf("SaveProgram failed: %v", err)
	}

	start := time.Now()
	ok := &Run{ProgramID: p.ID, StartedAt: start, Duration: 3 * time.Millisecond, Output: "5\n"}
	failed := &Run{
		ProgramID:    p.ID,
		StartedAt:    start.Add(time.Second),
		Output:       "",
		ErrorKind:    "StepLimitExceeded",
		ErrorMessage: "execution exceeded 10 steps",
		ErrorLine:    1,
	}
	for _, r := range []*Run{ok, failed} {
		if err := s.RecordRun(r); err != nil {
			t.Fatalf("RecordRun failed: %v", err)
		}
	}

	runs, err := s.ListRuns(p.ID, 10)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("ListRuns returned %d runs, want 2", len(runs))
	}
	if runs[0].ID != failed.ID || runs[0].ErrorKind != "StepLimitExceeded" || runs[0].ErrorLine != 1 {
		t.Errorf("newest run = %+v", runs[0])
	}
	if runs[1].Output != "5\n" || runs[1].ErrorKind != "" || runs[1].Duration != 3*time.Millisecond {
		t.Errorf("oldest run = %+v", runs[1])
	}

	if err := s.DeleteProgram("ada", p.ID); err != nil {
		t.Fatalf("DeleteProgram failed: %v", err)
	}
	runs, err = s.ListRuns(p.ID, 10)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("runs survived their program: %+v", runs)
	}
}
