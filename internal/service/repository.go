package service

import (
	"context"
	"crypto/md5"
	"database/sql"
	"encoding/hex"
	"strings"

	"github.com/user/procengine/apperr"
	"github.com/user/procengine/internal/storage/model"
	"github.com/user/procengine/pkg/bpmn"
	"github.com/user/procengine/pkg/engine"
)

// MaxBpmnSize is the upper bound on an uploaded BPMN file, per spec §4.7.
const MaxBpmnSize = 2 * 1024 * 1024

// procDefKey derives the deterministic key a process name maps to,
// grounded on RepositoryService::create_procdef's `md5(bpmn_name.to_lowercase())`.
func procDefKey(name string) string {
	sum := md5.Sum([]byte(strings.ToLower(name)))
	return hex.EncodeToString(sum[:])
}

// deploy validates and persists a Deployment/ByteArray/ProcDef triple inside
// tx under key, grounded on DeploymentBuilder::deploy_with_tran.
func (e *Engine) deploy(ctx context.Context, tx *sql.Tx, name, key, deployerID, companyID string, xml []byte) (*model.ProcDef, error) {
	const op = "service.Engine.deploy"

	if len(xml) == 0 {
		return nil, apperr.InvalidInputf(op, "bpmn document is empty")
	}
	if len(xml) > MaxBpmnSize {
		return nil, apperr.InvalidInputf(op, "bpmn document exceeds the %d byte limit", MaxBpmnSize)
	}
	// Parsed purely to validate structural correctness before persisting —
	// the actual *bpmn.Process is re-loaded from storage on every later use.
	if _, err := bpmn.Parse(xml); err != nil {
		return nil, err
	}

	dep := &model.Deployment{
		Name: name, Key: key, CompanyID: companyID, DeployerID: deployerID, DeployTime: e.now(),
	}
	dep, err := e.reDeployment.Create(ctx, tx, dep)
	if err != nil {
		return nil, err
	}
	if _, err := e.geByteArray.Create(ctx, tx, &model.ByteArray{Name: name, DeploymentID: dep.ID, Bytes: xml}); err != nil {
		return nil, err
	}

	procDef := &model.ProcDef{
		Key: key, DeploymentID: dep.ID, CompanyID: companyID,
		DeployerID: deployerID, UpdateUserID: deployerID, UpdateTime: e.now(),
	}
	procDef, err = e.reProcDef.Create(ctx, tx, procDef)
	if err != nil {
		return nil, err
	}
	return procDef, nil
}

// CreateProcDef deploys a brand-new process: the key derived from name must
// not already exist for companyID. Grounded on
// RepositoryService::create_procdef.
func (e *Engine) CreateProcDef(ctx context.Context, name, deployerID, companyID string, xml []byte) (*model.ProcDef, error) {
	const op = "service.Engine.CreateProcDef"
	key := procDefKey(name)

	var procDef *model.ProcDef
	err := e.withTx(ctx, "CreateProcDef", func(tx *sql.Tx) error {
		_, err := e.reProcDef.GetLatestByKey(ctx, tx, key, companyID)
		if err == nil {
			return apperr.InvalidInputf(op, "a process definition named %q already exists for this company", name)
		}
		if code, ok := apperr.CodeOf(err); !ok || code != apperr.NotFound {
			return err
		}

		procDef, err = e.deploy(ctx, tx, name, key, deployerID, companyID, xml)
		return err
	})
	engineObserveDeploy(companyID, err)
	return procDef, err
}

// PublishProcDef re-deploys an existing process under its own key, always
// bumping the version — grounded on RepositoryService::publish_procdef.
func (e *Engine) PublishProcDef(ctx context.Context, procDefID, deployerID string, xml []byte) (*model.ProcDef, error) {
	var published *model.ProcDef
	err := e.withTx(ctx, "PublishProcDef", func(tx *sql.Tx) error {
		existing, err := e.reProcDef.GetByID(ctx, tx, procDefID)
		if err != nil {
			return err
		}
		published, err = e.deploy(ctx, tx, existing.Key, existing.Key, deployerID, existing.CompanyID, xml)
		return err
	})
	engineObserveDeploy("", err)
	return published, err
}

// GetBpmnByProcDefID returns the raw XML deployed for procDefID, grounded on
// RepositoryService::get_bpmn_by_procdef_id.
func (e *Engine) GetBpmnByProcDefID(ctx context.Context, procDefID string) (*model.ProcDef, string, error) {
	const op = "service.Engine.GetBpmnByProcDefID"
	var procDef *model.ProcDef
	var xmlStr string
	err := e.withTx(ctx, "GetBpmnByProcDefID", func(tx *sql.Tx) error {
		var err error
		procDef, err = e.reProcDef.GetByID(ctx, tx, procDefID)
		if err != nil {
			return err
		}
		ba, err := e.geByteArray.GetByDeploymentID(ctx, tx, procDef.DeploymentID)
		if err != nil {
			return err
		}
		if len(ba.Bytes) == 0 {
			return apperr.InternalErrorf(op, "apf_ge_bytearray(deployment_id:%s) bytes is empty", procDef.DeploymentID)
		}
		xmlStr = string(ba.Bytes)
		return nil
	})
	return procDef, xmlStr, err
}

// GetProcDefByID returns the procdef row itself.
func (e *Engine) GetProcDefByID(ctx context.Context, procDefID string) (*model.ProcDef, error) {
	var procDef *model.ProcDef
	err := e.withTx(ctx, "GetProcDefByID", func(tx *sql.Tx) error {
		var err error
		procDef, err = e.reProcDef.GetByID(ctx, tx, procDefID)
		return err
	})
	return procDef, err
}

// DeleteProcDefByID soft-deletes a procdef, stamping userID as the deleter,
// grounded on RepositoryService::delete_procdef_by_id(id, user_id).
func (e *Engine) DeleteProcDefByID(ctx context.Context, procDefID, userID string) error {
	return e.withTx(ctx, "DeleteProcDefByID", func(tx *sql.Tx) error {
		return e.reProcDef.DeleteByID(ctx, tx, procDefID, userID)
	})
}

func engineObserveDeploy(companyID string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	engine.DeployCount.WithLabelValues(companyID, result).Inc()
}
