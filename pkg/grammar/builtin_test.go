package grammar

import (
	"errors"
	"testing"
	"unsafe"
)

func TestBuiltinRegistryHasEveryLanguage(t *testing.T) {
	r := NewBuiltinRegistry()

	for _, lang := range Languages {
		if !r.Has(lang) {
			t.Errorf("Has(%s) = false; want true", lang)
		}
	}

	if r.Has(Language(0)) || r.Has(Language(99)) {
		t.Error("Has() should be false for values outside the closed set")
	}
}

func TestBuiltinRegistryLoadAll(t *testing.T) {
	r := NewBuiltinRegistry()

	for _, lang := range Languages {
		t.Run(lang.String(), func(t *testing.T) {
			l, err := r.Load(lang)
			if err != nil {
				t.Fatalf("Load(%s): %v", lang, err)
			}
			if l == nil {
				t.Fatalf("Load(%s) returned nil Language", lang)
			}
		})
	}
}

func TestBuiltinRegistryLoadCaching(t *testing.T) {
	r := NewBuiltinRegistry()

	lang1, err := r.Load(Go)
	if err != nil {
		t.Fatal(err)
	}

	lang2, err := r.Load(Go)
	if err != nil {
		t.Fatal(err)
	}

	// Same pointer should be returned on second call (double-check locking cache).
	if lang1 != lang2 {
		t.Error("Load should return the cached Language on second call")
	}
}

func TestBuiltinRegistryLoadUnknown(t *testing.T) {
	r := NewBuiltinRegistry()

	_, err := r.Load(Language(42))
	var notFound *ErrGrammarNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("Load(unknown) error = %v; want *ErrGrammarNotFound", err)
	}
	if notFound.Language != Language(42) {
		t.Errorf("ErrGrammarNotFound.Language = %d; want 42", notFound.Language)
	}
}

func TestBuiltinRegistryNilProvider(t *testing.T) {
	r := NewBuiltinRegistry()
	r.Register(Python, func() unsafe.Pointer { return nil })

	if _, err := r.Load(Python); err == nil {
		t.Fatal("Load with a nil grammar pointer should fail")
	}
}
