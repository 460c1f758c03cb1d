package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestText(t *testing.T) {
	cases := map[string]string{
		"  spelling is wrong ":                  "spelling is wrong",
		"<script>alert(1)</script>":             "",
		"<b>Rahul</b> should be <i>Rahul K</i>": "Rahul should be Rahul K",
		"Tom & Jerry":                           "Tom & Jerry",
	}
	for in, want := range cases {
		assert.Equal(t, want, Text(in), in)
	}
}
