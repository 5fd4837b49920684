package sync

import (
	"context"

	"github.com/ldttech/poscore/internal/erpnext"
	"github.com/ldttech/poscore/internal/errors"
	"github.com/ldttech/poscore/internal/logging"
	"github.com/ldttech/poscore/internal/models"
)

// replayOperation executes one queued operation against the backend.
// An error return leaves the operation to the retry/fail logic; nil
// means the operation's effects are durably recorded.
func (e *Engine) replayOperation(ctx context.Context, op *models.QueueOperation) error {
	decoded, err := op.DecodePayload()
	if err != nil {
		return errors.Wrap(errors.ErrUnknownOperation, "cannot replay operation", err)
	}

	switch payload := decoded.(type) {
	case *models.CreateDraftPayload:
		return e.replayCreateDraft(ctx, op, payload)
	case *models.SubmitAndPayPayload:
		return e.replaySubmitAndPay(ctx, op, payload)
	case *models.CreateAndPayPayload:
		return e.replayCreateAndPay(ctx, op, payload)
	case *models.SubmitInvoicePayload:
		return e.replaySubmitInvoice(ctx, payload)
	case *models.CreateCustomerPayload:
		return e.replayCreateCustomer(ctx, op, payload)
	default:
		return errors.New(errors.ErrUnknownOperation, "no replay branch for operation")
	}
}

// replayCreateDraft creates the remote draft and records the checkout
// link so the paired submit_and_pay can resolve its reference. The
// link write must land before the operation is marked completed, which
// holds because this function returns before any status transition.
func (e *Engine) replayCreateDraft(ctx context.Context, op *models.QueueOperation, payload *models.CreateDraftPayload) error {
	draft, err := e.remote.CreateInvoiceDraft(ctx, erpnext.DraftRequest{
		CustomerName: payload.CustomerName,
		Company:      payload.Company,
		Items:        payload.Items,
	}, op.Token)
	if err != nil {
		return err
	}

	if err := e.repo.PutPendingCheckoutLink(payload.OrderID, draft.Name); err != nil {
		return err
	}

	logging.Info("Draft invoice created from queue", map[string]interface{}{
		"order_id": payload.OrderID,
		"invoice":  draft.Name,
	})
	return nil
}

// replaySubmitAndPay resolves the invoice reference from the payload or
// the checkout link, then submits and pays. The link is deleted only
// after the remote call succeeds so a failed attempt can resolve again.
func (e *Engine) replaySubmitAndPay(ctx context.Context, op *models.QueueOperation, payload *models.SubmitAndPayPayload) error {
	ref := payload.RemoteInvoiceID
	if ref == "" && payload.OrderID != "" {
		linked, err := e.repo.GetPendingCheckoutLink(payload.OrderID)
		if err != nil {
			return err
		}
		ref = linked
	}
	if ref == "" {
		return errors.New(errors.ErrMissingInvoiceRef,
			"no remote invoice reference for order "+payload.OrderID)
	}

	if err := e.remote.SubmitAndPay(ctx, ref, payload.ModeOfPayment, op.Token); err != nil {
		return err
	}

	if payload.OrderID != "" {
		if err := e.repo.DeletePendingCheckoutLink(payload.OrderID); err != nil {
			return err
		}
	}
	if payload.LocalInvoiceID != 0 {
		if err := e.repo.MarkInvoiceSynced(payload.LocalInvoiceID, ref); err != nil {
			return err
		}
	}
	return nil
}

// replayCreateAndPay runs draft creation and payment as one attempt.
func (e *Engine) replayCreateAndPay(ctx context.Context, op *models.QueueOperation, payload *models.CreateAndPayPayload) error {
	draft, err := e.remote.CreateInvoiceDraft(ctx, erpnext.DraftRequest{
		CustomerName: payload.CustomerName,
		Company:      payload.Company,
		Items:        payload.Items,
	}, op.Token)
	if err != nil {
		return err
	}

	if err := e.remote.SubmitAndPay(ctx, draft.Name, payload.ModeOfPayment, op.Token); err != nil {
		return err
	}

	if payload.LocalInvoiceID != 0 {
		if err := e.repo.MarkInvoiceSynced(payload.LocalInvoiceID, draft.Name); err != nil {
			return err
		}
	}
	return nil
}

// replaySubmitInvoice pushes a legacy invoice record.
func (e *Engine) replaySubmitInvoice(ctx context.Context, payload *models.SubmitInvoicePayload) error {
	if err := e.remote.SubmitInvoice(ctx, payload.Invoice); err != nil {
		return err
	}
	if payload.LocalInvoiceID != 0 {
		return e.repo.MarkInvoiceSynced(payload.LocalInvoiceID, payload.Invoice.RemoteName)
	}
	return nil
}

// replayCreateCustomer creates the customer remotely and swaps the
// local placeholder for the authoritative record.
func (e *Engine) replayCreateCustomer(ctx context.Context, op *models.QueueOperation, payload *models.CreateCustomerPayload) error {
	created, err := e.remote.CreateCustomer(ctx, erpnext.CreateCustomerRequest{
		Name:  payload.Name,
		Phone: payload.Phone,
		Email: payload.Email,
	}, op.Token)
	if err != nil {
		return err
	}

	if err := e.repo.PutCustomers([]models.Customer{*created}); err != nil {
		return err
	}
	if err := e.repo.DeleteCustomer(payload.TempID); err != nil {
		return err
	}

	logging.Info("Placeholder customer replaced", map[string]interface{}{
		"temp_id": payload.TempID,
		"name":    created.Name,
	})
	return nil
}
