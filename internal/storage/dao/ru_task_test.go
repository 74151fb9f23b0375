package dao

import (
	"context"
	"testing"
	"time"

	"github.com/user/procengine/apperr"
	"github.com/user/procengine/internal/storage/model"
	storagesql "github.com/user/procengine/internal/storage/sql"
)

func newTestTask(procInstID, businessKey string) *model.RuTask {
	return &model.RuTask{
		ExecutionID: "exec-1",
		ProcInstID:  procInstID,
		ProcDefID:   "pd-1",
		ElementID:   "approve",
		Name:        "Approve",
		ElementType: "userTask",
		BusinessKey: businessKey,
		CreateTime:  time.Now().UTC().Truncate(time.Second),
	}
}

func TestRuTaskDAO_CreateAndGetByID(t *testing.T) {
	tx := openTestTx(t)
	ctx := context.Background()
	gw := NewGateway(storagesql.DriverSQLite)
	tasks := NewRuTaskDAO(gw)

	created, err := tasks.Create(ctx, tx, newTestTask("pi-1", "req-100"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := tasks.GetByID(ctx, tx, created.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.BusinessKey != "req-100" || got.ElementID != "approve" {
		t.Fatalf("round-tripped task mismatch: %+v", got)
	}
}

func TestRuTaskDAO_GetByID_NotFound(t *testing.T) {
	tx := openTestTx(t)
	gw := NewGateway(storagesql.DriverSQLite)
	tasks := NewRuTaskDAO(gw)

	_, err := tasks.GetByID(context.Background(), tx, "missing")
	code, ok := apperr.CodeOf(err)
	if !ok || code != apperr.NotFound {
		t.Fatalf("want NotFound, got %v", err)
	}
}

func TestRuTaskDAO_Find_ByBusinessKey(t *testing.T) {
	tx := openTestTx(t)
	ctx := context.Background()
	gw := NewGateway(storagesql.DriverSQLite)
	tasks := NewRuTaskDAO(gw)

	if _, err := tasks.Create(ctx, tx, newTestTask("pi-1", "req-100")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := tasks.Create(ctx, tx, newTestTask("pi-2", "req-200")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := tasks.Find(ctx, tx, Filter{BusinessKey: "req-200"})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(got) != 1 || got[0].ProcInstID != "pi-2" {
		t.Fatalf("want exactly one task for req-200, got %+v", got)
	}
}

func TestRuTaskDAO_Find_ByCandidateUserAndGroup(t *testing.T) {
	tx := openTestTx(t)
	ctx := context.Background()
	gw := NewGateway(storagesql.DriverSQLite)
	tasks := NewRuTaskDAO(gw)
	idents := NewRuIdentDAO(gw)

	forAlice, err := tasks.Create(ctx, tx, newTestTask("pi-1", "req-100"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	forHR, err := tasks.Create(ctx, tx, newTestTask("pi-2", "req-200"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := idents.Create(ctx, tx, &model.RuIdent{
		IdentType: model.IdentUser, IdentID: "alice", TaskID: forAlice.ID,
		ProcInstID: "pi-1", ProcDefID: "pd-1",
	}); err != nil {
		t.Fatalf("Create ident (user): %v", err)
	}
	if _, err := idents.Create(ctx, tx, &model.RuIdent{
		IdentType: model.IdentGroup, IdentID: "hr", TaskID: forHR.ID,
		ProcInstID: "pi-2", ProcDefID: "pd-1",
	}); err != nil {
		t.Fatalf("Create ident (group): %v", err)
	}

	byUser, err := tasks.Find(ctx, tx, Filter{CandidateUser: "alice"})
	if err != nil {
		t.Fatalf("Find by candidate user: %v", err)
	}
	if len(byUser) != 1 || byUser[0].ID != forAlice.ID {
		t.Fatalf("want only alice's task, got %+v", byUser)
	}

	byGroup, err := tasks.Find(ctx, tx, Filter{CandidateGroup: "hr"})
	if err != nil {
		t.Fatalf("Find by candidate group: %v", err)
	}
	if len(byGroup) != 1 || byGroup[0].ID != forHR.ID {
		t.Fatalf("want only the HR task, got %+v", byGroup)
	}
}

func TestRuTaskDAO_Find_ByProcessDefinitionKey(t *testing.T) {
	tx := openTestTx(t)
	ctx := context.Background()
	gw := NewGateway(storagesql.DriverSQLite)
	tasks := NewRuTaskDAO(gw)
	procdefs := NewReProcDefDAO(gw)

	pd, err := procdefs.Create(ctx, tx, newTestProcDef("leave-request", "acme", "dep-1"))
	if err != nil {
		t.Fatalf("Create procdef: %v", err)
	}

	task := newTestTask("pi-1", "req-100")
	task.ProcDefID = pd.ID
	if _, err := tasks.Create(ctx, tx, task); err != nil {
		t.Fatalf("Create task: %v", err)
	}
	// Unrelated task under a different, never-created procdef id.
	if _, err := tasks.Create(ctx, tx, newTestTask("pi-2", "req-200")); err != nil {
		t.Fatalf("Create task: %v", err)
	}

	got, err := tasks.Find(ctx, tx, Filter{ProcessDefinitionKey: "leave-request"})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(got) != 1 || got[0].ProcInstID != "pi-1" {
		t.Fatalf("want exactly the task under leave-request, got %+v", got)
	}
}

func TestRuTaskDAO_Delete(t *testing.T) {
	tx := openTestTx(t)
	ctx := context.Background()
	gw := NewGateway(storagesql.DriverSQLite)
	tasks := NewRuTaskDAO(gw)

	created, err := tasks.Create(ctx, tx, newTestTask("pi-1", "req-100"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	n, err := tasks.Delete(ctx, tx, created.ID)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if n != 1 {
		t.Fatalf("want 1 row deleted, got %d", n)
	}

	if _, err := tasks.GetByID(ctx, tx, created.ID); err == nil {
		t.Fatalf("expected the task to be gone after Delete")
	}
}
