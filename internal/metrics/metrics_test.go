package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHandlerExposesSagaCounters(t *testing.T) {
	RecordSagaStep("CREATE", "maintenance.insert", nil, 5*time.Millisecond)
	RecordSagaStep("CREATE", "drone.in_maintenance", errors.New("down"), time.Millisecond)
	RecordSaga("CREATE", "COMPLETED")
	SetPendingSagas(3)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	text := string(body)

	for _, want := range []string{
		`maintenance_saga_step_total{kind="create",outcome="ok",step="maintenance.insert"} 1`,
		`maintenance_saga_step_total{kind="create",outcome="error",step="drone.in_maintenance"} 1`,
		`maintenance_saga_total{kind="create",state="completed"} 1`,
		`maintenance_saga_pending 3`,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
