package errors

import (
	"fmt"
	"testing"
)

func TestClassOf_Direct(t *testing.T) {
	err := Wrap(Semantic, "patch span missing")
	if ClassOf(err) != Semantic {
		t.Errorf("got %v, want Semantic", ClassOf(err))
	}
}

func TestClassOf_Wrapped(t *testing.T) {
	base := Wrap(PreCondition, "no logs available")
	wrapped := fmt.Errorf("ingest: %w", base)
	if ClassOf(wrapped) != PreCondition {
		t.Errorf("got %v, want PreCondition", ClassOf(wrapped))
	}
}

func TestClassOf_UnclassifiedDefaultsTransient(t *testing.T) {
	err := fmt.Errorf("connection reset")
	if ClassOf(err) != Transient {
		t.Errorf("got %v, want Transient", ClassOf(err))
	}
}
