package engine

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/user/procengine/internal/storage/dao"
	"github.com/user/procengine/internal/storage/model"
	storagesql "github.com/user/procengine/internal/storage/sql"
	"github.com/user/procengine/pkg/bpmn"
	"github.com/user/procengine/pkg/expr"
	"github.com/user/procengine/pkg/value"

	_ "modernc.org/sqlite"
)

func newTestDepsAndTx(t *testing.T) (*Deps, *sql.Tx) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if _, err := db.Exec(storagesql.Schema); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	tx, err := db.BeginTx(context.Background(), nil)
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}
	t.Cleanup(func() { _ = tx.Rollback() })

	gw := dao.NewGateway(storagesql.DriverSQLite)
	deps := &Deps{
		RuExec:     dao.NewRuExecutionDAO(gw),
		RuTask:     dao.NewRuTaskDAO(gw),
		RuIdent:    dao.NewRuIdentDAO(gw),
		RuVar:      dao.NewRuVarDAO(gw),
		HiProcInst: dao.NewHiProcInstDAO(gw),
		HiActInst:  dao.NewHiActInstDAO(gw),
		HiTask:     dao.NewHiTaskDAO(gw),
		HiVar:      dao.NewHiVarDAO(gw),
		Evaluator:  expr.NewLuaEvaluator(),
		Now:        func() time.Time { return time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC) },
	}
	return deps, tx
}

func mustParse(t *testing.T, xml string) *bpmn.Process {
	t.Helper()
	defs, err := bpmn.Parse([]byte(xml))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return &defs.Process
}

const sequentialProcess = `<definitions><process id="leave-request">
  <startEvent id="start" />
  <userTask id="approve" name="Approve" />
  <endEvent id="end" />
  <sequenceFlow id="f1" sourceRef="start" targetRef="approve" />
  <sequenceFlow id="f2" sourceRef="approve" targetRef="end" />
</process></definitions>`

func TestRun_StartProcess_StopsAtFirstUserTask(t *testing.T) {
	deps, tx := newTestDepsAndTx(t)
	proc := mustParse(t, sequentialProcess)
	ctx := context.Background()

	octx := NewOperatorContext(proc, "alice", "", nil)
	procDef := &model.ProcDef{ID: uuid.NewString()}

	result, err := Run(ctx, octx, tx, deps, &CreateAndStartProcessInstance{ProcDef: procDef, BusinessKey: "req-1"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.ProcessInstance == nil {
		t.Fatalf("expected the seed operator's process instance to be returned")
	}

	tasks, err := deps.RuTask.Find(ctx, tx, dao.Filter{ProcInstID: result.ProcessInstance.ID})
	if err != nil {
		t.Fatalf("Find tasks: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ElementID != "approve" {
		t.Fatalf("want exactly one pending task at 'approve', got %+v", tasks)
	}

	hiProcInst, err := deps.HiProcInst.GetByID(ctx, tx, result.ProcessInstance.ID)
	if err != nil {
		t.Fatalf("GetByID HiProcInst: %v", err)
	}
	if hiProcInst.EndTime != nil {
		t.Fatalf("process instance must still be open while a task is pending")
	}
}

func TestRun_CompleteTask_ReachesEndEventAndClosesHistory(t *testing.T) {
	deps, tx := newTestDepsAndTx(t)
	proc := mustParse(t, sequentialProcess)
	ctx := context.Background()

	octx := NewOperatorContext(proc, "alice", "", nil)
	procDef := &model.ProcDef{ID: uuid.NewString()}
	started, err := Run(ctx, octx, tx, deps, &CreateAndStartProcessInstance{ProcDef: procDef, BusinessKey: "req-1"})
	if err != nil {
		t.Fatalf("Run (start): %v", err)
	}
	procInst := started.ProcessInstance

	tasks, err := deps.RuTask.Find(ctx, tx, dao.Filter{ProcInstID: procInst.ID})
	if err != nil || len(tasks) != 1 {
		t.Fatalf("expected one pending task, got %v (err=%v)", tasks, err)
	}
	task := tasks[0]

	currentExec, err := deps.RuExec.GetByID(ctx, tx, task.ExecutionID)
	if err != nil {
		t.Fatalf("GetByID exec: %v", err)
	}
	node, ok := proc.ResolveElement(task.ElementID)
	if !ok {
		t.Fatalf("resolve task node: not found")
	}

	octx2 := NewOperatorContext(proc, "alice", "", nil)
	_, err = Run(ctx, octx2, tx, deps, &CompleteTask{ProcInst: procInst, CurrentExec: currentExec, Task: task, Node: node.Node})
	if err != nil {
		t.Fatalf("Run (complete): %v", err)
	}

	hiProcInst, err := deps.HiProcInst.GetByID(ctx, tx, procInst.ID)
	if err != nil {
		t.Fatalf("GetByID HiProcInst: %v", err)
	}
	if hiProcInst.EndTime == nil {
		t.Fatalf("expected the process instance to be closed out after reaching the end event")
	}
	if hiProcInst.EndElementID != "end" {
		t.Fatalf("want end_element_id 'end', got %q", hiProcInst.EndElementID)
	}

	remainingTasks, err := deps.RuTask.Find(ctx, tx, dao.Filter{ProcInstID: procInst.ID})
	if err != nil {
		t.Fatalf("Find tasks: %v", err)
	}
	if len(remainingTasks) != 0 {
		t.Fatalf("want no pending tasks left, got %+v", remainingTasks)
	}
}

const gatewayProcess = `<definitions><process id="approval">
  <startEvent id="start" />
  <exclusiveGateway id="gw" />
  <endEvent id="approved" />
  <endEvent id="rejected" />
  <sequenceFlow id="f1" sourceRef="start" targetRef="gw" />
  <sequenceFlow id="f2" sourceRef="gw" targetRef="approved">
    <conditionExpression>amount &lt;= 1000</conditionExpression>
  </sequenceFlow>
  <sequenceFlow id="f3" sourceRef="gw" targetRef="rejected" />
</process></definitions>`

func TestRun_ExclusiveGateway_TakesMatchingBranch(t *testing.T) {
	deps, tx := newTestDepsAndTx(t)
	proc := mustParse(t, gatewayProcess)
	ctx := context.Background()

	octx := NewOperatorContext(proc, "alice", "", map[string]value.Value{"amount": value.Int(500)})
	procDef := &model.ProcDef{ID: uuid.NewString()}
	result, err := Run(ctx, octx, tx, deps, &CreateAndStartProcessInstance{ProcDef: procDef, BusinessKey: "req-1"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	hiProcInst, err := deps.HiProcInst.GetByID(ctx, tx, result.ProcessInstance.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if hiProcInst.EndElementID != "approved" {
		t.Fatalf("want the matching conditional branch 'approved', got %q", hiProcInst.EndElementID)
	}
}

func TestRun_ExclusiveGateway_FallsBackToDefaultBranch(t *testing.T) {
	deps, tx := newTestDepsAndTx(t)
	proc := mustParse(t, gatewayProcess)
	ctx := context.Background()

	octx := NewOperatorContext(proc, "alice", "", map[string]value.Value{"amount": value.Int(5000)})
	procDef := &model.ProcDef{ID: uuid.NewString()}
	result, err := Run(ctx, octx, tx, deps, &CreateAndStartProcessInstance{ProcDef: procDef, BusinessKey: "req-1"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	hiProcInst, err := deps.HiProcInst.GetByID(ctx, tx, result.ProcessInstance.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if hiProcInst.EndElementID != "rejected" {
		t.Fatalf("want the unconditional default branch 'rejected', got %q", hiProcInst.EndElementID)
	}
}

const parallelProcess = `<definitions><process id="two-approvals">
  <startEvent id="start" />
  <parallelGateway id="fork" />
  <userTask id="legal" name="Legal review" />
  <userTask id="finance" name="Finance review" />
  <parallelGateway id="join" />
  <endEvent id="end" />
  <sequenceFlow id="f1" sourceRef="start" targetRef="fork" />
  <sequenceFlow id="f2" sourceRef="fork" targetRef="legal" />
  <sequenceFlow id="f3" sourceRef="fork" targetRef="finance" />
  <sequenceFlow id="f4" sourceRef="legal" targetRef="join" />
  <sequenceFlow id="f5" sourceRef="finance" targetRef="join" />
  <sequenceFlow id="f6" sourceRef="join" targetRef="end" />
</process></definitions>`

func TestRun_ParallelGateway_ForksIntoTwoPendingTasks(t *testing.T) {
	deps, tx := newTestDepsAndTx(t)
	proc := mustParse(t, parallelProcess)
	ctx := context.Background()

	octx := NewOperatorContext(proc, "alice", "", nil)
	procDef := &model.ProcDef{ID: uuid.NewString()}
	result, err := Run(ctx, octx, tx, deps, &CreateAndStartProcessInstance{ProcDef: procDef, BusinessKey: "req-1"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	tasks, err := deps.RuTask.Find(ctx, tx, dao.Filter{ProcInstID: result.ProcessInstance.ID})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("want both branches' userTasks pending, got %d", len(tasks))
	}
}

func TestRun_ParallelGateway_JoinsOnlyAfterBothBranchesComplete(t *testing.T) {
	deps, tx := newTestDepsAndTx(t)
	proc := mustParse(t, parallelProcess)
	ctx := context.Background()

	octx := NewOperatorContext(proc, "alice", "", nil)
	procDef := &model.ProcDef{ID: uuid.NewString()}
	result, err := Run(ctx, octx, tx, deps, &CreateAndStartProcessInstance{ProcDef: procDef, BusinessKey: "req-1"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	procInst := result.ProcessInstance

	tasks, err := deps.RuTask.Find(ctx, tx, dao.Filter{ProcInstID: procInst.ID})
	if err != nil || len(tasks) != 2 {
		t.Fatalf("want 2 pending tasks, got %v (err=%v)", tasks, err)
	}

	completeTask := func(task *model.RuTask) {
		t.Helper()
		currentExec, err := deps.RuExec.GetByID(ctx, tx, task.ExecutionID)
		if err != nil {
			t.Fatalf("GetByID exec: %v", err)
		}
		node, ok := proc.ResolveElement(task.ElementID)
		if !ok {
			t.Fatalf("resolve node %q", task.ElementID)
		}
		octxC := NewOperatorContext(proc, "alice", "", nil)
		if _, err := Run(ctx, octxC, tx, deps, &CompleteTask{ProcInst: procInst, CurrentExec: currentExec, Task: task, Node: node.Node}); err != nil {
			t.Fatalf("Run (complete %s): %v", task.ElementID, err)
		}
	}

	// Completing the first branch must not close the process instance yet.
	completeTask(tasks[0])
	hiProcInst, err := deps.HiProcInst.GetByID(ctx, tx, procInst.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if hiProcInst.EndTime != nil {
		t.Fatalf("process instance must stay open until both parallel branches join")
	}

	// Completing the second branch drives the join and reaches the end event.
	completeTask(tasks[1])
	hiProcInst, err = deps.HiProcInst.GetByID(ctx, tx, procInst.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if hiProcInst.EndTime == nil {
		t.Fatalf("expected the process instance to close once both branches joined")
	}
	if hiProcInst.EndElementID != "end" {
		t.Fatalf("want end_element_id 'end', got %q", hiProcInst.EndElementID)
	}
}

const serviceTaskProcess = `<definitions><process id="auto">
  <startEvent id="start" />
  <serviceTask id="notify" name="Notify" />
  <endEvent id="end" />
  <sequenceFlow id="f1" sourceRef="start" targetRef="notify" />
  <sequenceFlow id="f2" sourceRef="notify" targetRef="end" />
</process></definitions>`

func TestRun_ServiceTask_AutoCompletesWithoutACandidateCheck(t *testing.T) {
	deps, tx := newTestDepsAndTx(t)
	proc := mustParse(t, serviceTaskProcess)
	ctx := context.Background()

	octx := NewOperatorContext(proc, "", "", nil)
	procDef := &model.ProcDef{ID: uuid.NewString()}
	result, err := Run(ctx, octx, tx, deps, &CreateAndStartProcessInstance{ProcDef: procDef, BusinessKey: "req-1"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	hiProcInst, err := deps.HiProcInst.GetByID(ctx, tx, result.ProcessInstance.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if hiProcInst.EndTime == nil {
		t.Fatalf("a serviceTask must auto-complete and drive the process straight through to the end event")
	}
}

const terminateProcess = `<definitions><process id="early-exit" terminate_on_false="keepGoing">
  <startEvent id="start" />
  <userTask id="review" name="Review" />
  <endEvent id="end" />
  <sequenceFlow id="f1" sourceRef="start" targetRef="review" />
  <sequenceFlow id="f2" sourceRef="review" targetRef="end" />
</process></definitions>`

func TestRun_CompleteTask_TerminatesEarlyWhenFlagIsFalse(t *testing.T) {
	deps, tx := newTestDepsAndTx(t)
	proc := mustParse(t, terminateProcess)
	ctx := context.Background()

	octx := NewOperatorContext(proc, "alice", "", nil)
	procDef := &model.ProcDef{ID: uuid.NewString()}
	started, err := Run(ctx, octx, tx, deps, &CreateAndStartProcessInstance{ProcDef: procDef, BusinessKey: "req-1"})
	if err != nil {
		t.Fatalf("Run (start): %v", err)
	}
	procInst := started.ProcessInstance

	tasks, err := deps.RuTask.Find(ctx, tx, dao.Filter{ProcInstID: procInst.ID})
	if err != nil || len(tasks) != 1 {
		t.Fatalf("expected one pending task, got %v (err=%v)", tasks, err)
	}
	task := tasks[0]
	currentExec, err := deps.RuExec.GetByID(ctx, tx, task.ExecutionID)
	if err != nil {
		t.Fatalf("GetByID exec: %v", err)
	}
	node, ok := proc.ResolveElement(task.ElementID)
	if !ok {
		t.Fatalf("resolve task node")
	}

	octx2 := NewOperatorContext(proc, "alice", "", map[string]value.Value{"keepGoing": value.Bool(false)})
	_, err = Run(ctx, octx2, tx, deps, &CompleteTask{ProcInst: procInst, CurrentExec: currentExec, Task: task, Node: node.Node})
	if err != nil {
		t.Fatalf("Run (complete): %v", err)
	}

	hiProcInst, err := deps.HiProcInst.GetByID(ctx, tx, procInst.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if hiProcInst.EndTime == nil {
		t.Fatalf("expected the early-terminate jump to close the process instance")
	}
	// The synthetic terminate jump must record the synthetic terminate event's
	// own id, not the node that was active at termination.
	if hiProcInst.EndElementID != bpmn.TerminateEventID {
		t.Fatalf("want end_element_id %q, got %q", bpmn.TerminateEventID, hiProcInst.EndElementID)
	}
}

func TestCompleteTask_UnauthorizedCandidateIsRejected(t *testing.T) {
	deps, tx := newTestDepsAndTx(t)
	xml := `<definitions><process id="leave-request">
	  <startEvent id="start" />
	  <userTask id="approve" name="Approve" candidateGroups="managers" />
	  <endEvent id="end" />
	  <sequenceFlow id="f1" sourceRef="start" targetRef="approve" />
	  <sequenceFlow id="f2" sourceRef="approve" targetRef="end" />
	</process></definitions>`
	proc := mustParse(t, xml)
	ctx := context.Background()

	octx := NewOperatorContext(proc, "alice", "", nil)
	procDef := &model.ProcDef{ID: uuid.NewString()}
	started, err := Run(ctx, octx, tx, deps, &CreateAndStartProcessInstance{ProcDef: procDef, BusinessKey: "req-1"})
	if err != nil {
		t.Fatalf("Run (start): %v", err)
	}
	procInst := started.ProcessInstance

	tasks, err := deps.RuTask.Find(ctx, tx, dao.Filter{ProcInstID: procInst.ID})
	if err != nil || len(tasks) != 1 {
		t.Fatalf("expected one pending task, got %v (err=%v)", tasks, err)
	}
	task := tasks[0]
	currentExec, err := deps.RuExec.GetByID(ctx, tx, task.ExecutionID)
	if err != nil {
		t.Fatalf("GetByID exec: %v", err)
	}
	node, ok := proc.ResolveElement(task.ElementID)
	if !ok {
		t.Fatalf("resolve task node")
	}

	// bob is not in the "managers" candidate group.
	octx2 := NewOperatorContext(proc, "bob", "sales", nil)
	_, err = Run(ctx, octx2, tx, deps, &CompleteTask{ProcInst: procInst, CurrentExec: currentExec, Task: task, Node: node.Node})
	if err == nil {
		t.Fatalf("expected an authorization error for a non-candidate completer")
	}
}
