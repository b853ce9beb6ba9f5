package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderTemplate(t *testing.T) {
	t.Run("substitutes known fields", func(t *testing.T) {
		got := RenderTemplate("Hello {name}, see you at {phone}", map[string]string{
			"name":  "Ali",
			"phone": "905321112233",
		})
		assert.Equal(t, "Hello Ali, see you at 905321112233", got)
	})

	t.Run("missing field renders empty", func(t *testing.T) {
		got := RenderTemplate("Hello {name}{missing}!", map[string]string{"name": "Ali"})
		assert.Equal(t, "Hello Ali!", got)
	})

	t.Run("zero and false values render literally", func(t *testing.T) {
		got := RenderTemplate("Hello {name}, balance {count}, overdue {flag}", map[string]string{
			"name":  "Ali",
			"count": "0",
			"flag":  "false",
		})
		assert.Equal(t, "Hello Ali, balance 0, overdue false", got)
	})

	t.Run("repeated placeholder", func(t *testing.T) {
		got := RenderTemplate("{name} {name}", map[string]string{"name": "Ali"})
		assert.Equal(t, "Ali Ali", got)
	})

	t.Run("no placeholders", func(t *testing.T) {
		assert.Equal(t, "plain text", RenderTemplate("plain text", nil))
	})
}
