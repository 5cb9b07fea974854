package transform

import (
	"strings"
	"testing"
)

func TestExtractText(t *testing.T) {
	doc := parse(t, `Filters
=======

Use the `+"``value``"+` filter to match :ref:`+"`resources <res>`"+`.

.. code-block:: yaml

   policies:
     - name: secret-code

.. a comment nobody should find

+-------+--------+
| Key   | Meaning|
+-------+--------+
| op    | compare|
+-------+--------+

Example::

    also-secret

Done.
`)
	got := ExtractText(doc)
	for _, want := range []string{"Filters", "Use the", "value", "resources", "Key", "compare", "Example:", "Done."} {
		if !strings.Contains(got, want) {
			t.Errorf("expected %q in extracted text: %q", want, got)
		}
	}
	for _, banned := range []string{"secret-code", "policies:", "nobody", "also-secret"} {
		if strings.Contains(got, banned) {
			t.Errorf("unexpected %q in extracted text: %q", banned, got)
		}
	}
}

func TestExtractTextOrder(t *testing.T) {
	doc := parse(t, "Alpha\n=====\n\nbeta gamma\n\n- delta\n- epsilon\n")
	if got := ExtractText(doc); got != "Alpha beta gamma delta epsilon" {
		t.Fatalf("unexpected text: %q", got)
	}
}
