package dao

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/user/procengine/apperr"
	"github.com/user/procengine/internal/storage/model"
)

// ReDeploymentDAO is the persistence gateway for Deployment rows, grounded on
// ApfReDeploymentDao (src/dao/apf_re_deployment_dao.rs).
type ReDeploymentDAO struct{ gw *Gateway }

func NewReDeploymentDAO(gw *Gateway) *ReDeploymentDAO { return &ReDeploymentDAO{gw: gw} }

func (d *ReDeploymentDAO) Create(ctx context.Context, tx *sql.Tx, dep *model.Deployment) (*model.Deployment, error) {
	const op = "dao.ReDeployment.Create"
	dep.ID = uuid.NewString()
	_, err := d.gw.exec(ctx, tx, `insert into apf_re_deployment
		(id, name, process_key, company_id, deployer_id, deploy_time)
		values (?, ?, ?, ?, ?, ?)`,
		dep.ID, dep.Name, dep.Key, dep.CompanyID, dep.DeployerID, dep.DeployTime)
	if err != nil {
		return nil, apperr.Wrap(apperr.InternalError, op, "insert apf_re_deployment failed", err)
	}
	return dep, nil
}

func (d *ReDeploymentDAO) GetByID(ctx context.Context, tx *sql.Tx, id string) (*model.Deployment, error) {
	const op = "dao.ReDeployment.GetByID"
	row := d.gw.queryRow(ctx, tx, `select id, name, process_key, company_id, deployer_id, deploy_time
		from apf_re_deployment where id = ?`, id)
	var dep model.Deployment
	if err := row.Scan(&dep.ID, &dep.Name, &dep.Key, &dep.CompanyID, &dep.DeployerID, &dep.DeployTime); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.NotFoundf(op, "apf_re_deployment(%s) not found", id)
		}
		return nil, apperr.Wrap(apperr.InternalError, op, "select apf_re_deployment failed", err)
	}
	return &dep, nil
}

// GeByteArrayDAO is the persistence gateway for ByteArray rows, grounded on
// ApfGeBytearrayDao (src/dao/apf_ge_bytearray_dao.rs).
type GeByteArrayDAO struct{ gw *Gateway }

func NewGeByteArrayDAO(gw *Gateway) *GeByteArrayDAO { return &GeByteArrayDAO{gw: gw} }

func (d *GeByteArrayDAO) Create(ctx context.Context, tx *sql.Tx, ba *model.ByteArray) (*model.ByteArray, error) {
	const op = "dao.GeByteArray.Create"
	ba.ID = uuid.NewString()
	_, err := d.gw.exec(ctx, tx, `insert into apf_ge_bytearray (id, name, deployment_id, bytes)
		values (?, ?, ?, ?)`, ba.ID, ba.Name, ba.DeploymentID, ba.Bytes)
	if err != nil {
		return nil, apperr.Wrap(apperr.InternalError, op, "insert apf_ge_bytearray failed", err)
	}
	return ba, nil
}

func (d *GeByteArrayDAO) GetByDeploymentID(ctx context.Context, tx *sql.Tx, deploymentID string) (*model.ByteArray, error) {
	const op = "dao.GeByteArray.GetByDeploymentID"
	row := d.gw.queryRow(ctx, tx, `select id, name, deployment_id, bytes
		from apf_ge_bytearray where deployment_id = ?`, deploymentID)
	var ba model.ByteArray
	if err := row.Scan(&ba.ID, &ba.Name, &ba.DeploymentID, &ba.Bytes); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.NotFoundf(op, "apf_ge_bytearray(deployment_id:%s) not found", deploymentID)
		}
		return nil, apperr.Wrap(apperr.InternalError, op, "select apf_ge_bytearray failed", err)
	}
	return &ba, nil
}
