package placeholder

import "testing"

func TestApply(t *testing.T) {
	r := New("${", "}", map[string]string{"schema": "app", "owner": "svc"})
	got := r.Apply("CREATE TABLE ${schema}.t (c TEXT); -- owned by ${owner}")
	want := "CREATE TABLE app.t (c TEXT); -- owned by svc"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestUnknownPlaceholderPassesThrough(t *testing.T) {
	r := New("${", "}", map[string]string{"schema": "app"})
	got := r.Apply("SELECT '${not_configured}' FROM ${schema}.t")
	want := "SELECT '${not_configured}' FROM app.t"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestNoValues(t *testing.T) {
	r := New("${", "}", nil)
	if got := r.Apply("SELECT ${x}"); got != "SELECT ${x}" {
		t.Fatalf("got %q", got)
	}
}
