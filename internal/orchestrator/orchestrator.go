// Package orchestrator runs the command pipeline: admission, pending-state
// resolution, fast-path detection, the model tool loop and outcome recording.
package orchestrator

import (
	"context"
	"encoding/json"
	"regexp"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shoplens-ai/catalog-assistant/internal/catalog"
	"github.com/shoplens-ai/catalog-assistant/internal/events"
	"github.com/shoplens-ai/catalog-assistant/internal/executor"
	"github.com/shoplens-ai/catalog-assistant/internal/intent"
	"github.com/shoplens-ai/catalog-assistant/internal/llm"
	"github.com/shoplens-ai/catalog-assistant/internal/model"
	"github.com/shoplens-ai/catalog-assistant/internal/session"
	"github.com/shoplens-ai/catalog-assistant/internal/synthesizer"
	"github.com/shoplens-ai/catalog-assistant/pkg/logger"
	"github.com/shoplens-ai/catalog-assistant/pkg/metrics"
)

// Model call budget per command.
const (
	toolTemperature = 0.3
	maxTokens       = 1024
)

var (
	affirmative = regexp.MustCompile(`(?i)^(да|ага|подтверждаю|подтвердить|подтверди|давай|ок|окей|ok|yes)[\s.,!]*$`)
	negative    = regexp.MustCompile(`(?i)^(нет|отмена|отмени|отменить|не надо|no|cancel)[\s.,!]*$`)
	selection   = regexp.MustCompile(`^\d{1,2}$`)
)

// Orchestrator wires the command pipeline together.
type Orchestrator struct {
	api      catalog.API
	exec     *executor.Executor
	store    *session.Store
	detector *intent.Detector
	client   llm.Client
	synth    *synthesizer.Synthesizer
	events   *events.Publisher
	policy   llm.RetryPolicy
	model    string
	log      *logger.Logger
}

// New creates an orchestrator. The LLM client may be nil, in which case every
// command not covered by a fast path falls back to the menu.
func New(api catalog.API, exec *executor.Executor, store *session.Store, detector *intent.Detector,
	client llm.Client, synth *synthesizer.Synthesizer, pub *events.Publisher, llmModel string, log *logger.Logger) *Orchestrator {
	return &Orchestrator{
		api:      api,
		exec:     exec,
		store:    store,
		detector: detector,
		client:   client,
		synth:    synth,
		events:   pub,
		policy:   llm.DefaultRetryPolicy(),
		model:    llmModel,
		log:      log,
	}
}

// ProcessCommand runs one command to a terminal or pending outcome.
func (o *Orchestrator) ProcessCommand(ctx context.Context, req *model.CommandRequest) *model.CommandResult {
	return o.process(ctx, req, nil)
}

// ProcessCommandStream runs one command, streaming free-text model output
// through the emitter. Structured outcomes arrive only in the final result.
func (o *Orchestrator) ProcessCommandStream(ctx context.Context, req *model.CommandRequest, em *Emitter) *model.CommandResult {
	return o.process(ctx, req, em)
}

func (o *Orchestrator) process(ctx context.Context, req *model.CommandRequest, em *Emitter) *model.CommandResult {
	start := time.Now()
	text := model.SanitizeText(req.Text)
	log := o.log.WithSession(uuid.NewString(), req.ShopID, req.SessionID)

	if text == "" {
		return o.record(ctx, req, text, model.OutcomeError, false, start, &model.CommandResult{
			Message: "Пустая команда. Напишите, что нужно сделать с каталогом.",
		})
	}

	if !o.store.AllowCommand(req.SessionID) {
		metrics.CommandsRejected.WithLabelValues("rate_limited").Inc()
		return o.record(ctx, req, text, model.OutcomeRejected, false, start, &model.CommandResult{
			Message: "Слишком много команд подряд. Подождите минуту и повторите.",
			Retry:   true,
		})
	}

	if !o.store.BeginProcessing(req.SessionID) {
		metrics.CommandsRejected.WithLabelValues("busy").Inc()
		return o.record(ctx, req, text, model.OutcomeRejected, false, start, &model.CommandResult{
			Message: "Предыдущая команда ещё обрабатывается, дождитесь ответа.",
			Retry:   true,
		})
	}
	defer o.store.EndProcessing(req.SessionID)

	snapshot, err := o.loadSnapshot(ctx, req)
	if err != nil {
		log.Error("failed to load catalog snapshot", zap.Error(err))
		return o.finalize(ctx, req, text, model.ErrResult(model.ErrCodeAPI, "каталог временно недоступен", ""), "", false, start, em)
	}

	// A pending confirmation is resolved only by an explicit yes or no;
	// anything else leaves it to expire or be replaced.
	if affirmative.MatchString(text) || negative.MatchString(text) {
		conf, expired := o.store.TakeConfirmation(req.SessionID)
		switch {
		case expired:
			return o.record(ctx, req, text, model.OutcomeRejected, false, start, &model.CommandResult{
				Message: "Запрос подтверждения истёк. Повторите команду.",
			})
		case conf != nil && negative.MatchString(text):
			return o.record(ctx, req, text, model.OutcomeRejected, false, start, &model.CommandResult{
				Success: true,
				Message: "Операция отменена.",
			})
		case conf != nil:
			result := o.runConfirmed(ctx, snapshot.ShopID, conf)
			return o.finalize(ctx, req, text, result, "", false, start, em)
		}
	}

	clarifiedID := req.ClarifiedProductID
	switch {
	case clarifiedID != "":
		if c, expired := o.store.TakeClarification(req.SessionID); expired {
			return o.record(ctx, req, text, model.OutcomeRejected, false, start, &model.CommandResult{
				Message: "Уточнение устарело. Повторите команду.",
			})
		} else if c != nil && c.OriginalCommand != "" {
			text = c.OriginalCommand
		}
	case selection.MatchString(text):
		c, expired := o.store.TakeClarification(req.SessionID)
		if expired {
			return o.record(ctx, req, text, model.OutcomeRejected, false, start, &model.CommandResult{
				Message: "Уточнение устарело. Повторите команду.",
			})
		}
		if c != nil {
			idx, _ := strconv.Atoi(text)
			if idx < 1 || idx > len(c.Candidates) {
				return o.record(ctx, req, text, model.OutcomeRejected, false, start, &model.CommandResult{
					Message: "Такого варианта нет. Повторите команду целиком.",
				})
			}
			clarifiedID = c.Candidates[idx-1].ID
			if c.OriginalCommand != "" {
				text = c.OriginalCommand
			}
		}
	}

	execReq := &executor.Request{Snapshot: snapshot, Command: text, ClarifiedProductID: clarifiedID}

	if it := o.detector.DetectStock(text); it != nil {
		result := o.runStockIntent(ctx, execReq, it)
		return o.finalize(ctx, req, text, result, "", true, start, em)
	}

	aiCtx := o.store.Context(req.SessionID)
	if it, opErr := o.detector.DetectDiscount(text, snapshot.Products, &aiCtx); opErr != nil {
		return o.finalize(ctx, req, text, &model.ToolCallResult{Err: opErr}, "", true, start, em)
	} else if it != nil {
		raw, _ := json.Marshal(executor.SetDiscountArgs{ProductID: it.ProductID, Percentage: it.Percentage})
		result := o.exec.Execute(ctx, executor.OpSetDiscount, raw, execReq)
		o.countToolCall(string(executor.OpSetDiscount), result)
		return o.finalize(ctx, req, text, result, "", true, start, em)
	}

	if o.client == nil {
		return o.record(ctx, req, text, model.OutcomeError, false, start, &model.CommandResult{
			Message:        "Не удалось распознать команду. Воспользуйтесь меню.",
			FallbackToMenu: true,
		})
	}

	result, freeText, err := o.runModel(ctx, req, execReq, &aiCtx, em)
	if err != nil {
		log.Warn("model call failed", zap.Error(err))
		class := llm.Classify(err)
		if !class.Retryable() {
			return o.record(ctx, req, text, model.OutcomeError, false, start, &model.CommandResult{
				Message:        "Сервис распознавания команд недоступен. Воспользуйтесь меню.",
				FallbackToMenu: true,
			})
		}
		return o.record(ctx, req, text, model.OutcomeError, false, start, &model.CommandResult{
			Message: "Сервис перегружен, попробуйте ещё раз через пару секунд.",
			Retry:   true,
		})
	}

	return o.finalize(ctx, req, text, result, freeText, false, start, em)
}

// ConfirmPending resolves a pending confirmation through the explicit
// confirmation endpoint rather than a free-text reply.
func (o *Orchestrator) ConfirmPending(ctx context.Context, req *model.CommandRequest, accept bool) *model.CommandResult {
	start := time.Now()
	conf, expired := o.store.TakeConfirmation(req.SessionID)
	switch {
	case expired:
		return o.record(ctx, req, "", model.OutcomeRejected, false, start, &model.CommandResult{
			Message: "Запрос подтверждения истёк. Повторите команду.",
		})
	case conf == nil:
		return o.record(ctx, req, "", model.OutcomeRejected, false, start, &model.CommandResult{
			Message: "Нет операции, ожидающей подтверждения.",
		})
	case !accept:
		return o.record(ctx, req, "", model.OutcomeRejected, false, start, &model.CommandResult{
			Success: true,
			Message: "Операция отменена.",
		})
	}

	result := o.runConfirmed(ctx, req.ShopID, conf)
	return o.finalize(ctx, req, conf.Operation, result, "", false, start, nil)
}

func (o *Orchestrator) runConfirmed(ctx context.Context, shopID string, conf *model.Confirmation) *model.ToolCallResult {
	switch conf.Operation {
	case string(executor.OpBulkPriceUpdate):
		return o.exec.RunBulkPrice(ctx, shopID, conf)
	case string(executor.OpBulkDeleteAll):
		return o.exec.RunBulkDeleteAll(ctx, shopID)
	default:
		return model.ErrResult(model.ErrCodeValidation, "неизвестная операция подтверждения", "")
	}
}

func (o *Orchestrator) runStockIntent(ctx context.Context, execReq *executor.Request, it *intent.Intent) *model.ToolCallResult {
	qty := it.Quantity
	raw, _ := json.Marshal(executor.UpdateProductArgs{
		ProductName:   it.ProductQuery,
		StockQuantity: &qty,
	})
	result := o.exec.Execute(ctx, executor.OpUpdateProduct, raw, execReq)
	o.countToolCall(string(executor.OpUpdateProduct), result)
	return result
}

// runModel runs one tool-calling round. Tool calls execute sequentially and
// the chain stops at the first non-success result; a plain text response is
// returned as free text.
func (o *Orchestrator) runModel(ctx context.Context, req *model.CommandRequest, execReq *executor.Request,
	aiCtx *model.AIContext, em *Emitter) (*model.ToolCallResult, string, error) {

	messages := make([]llm.Message, 0, session.HistoryWindow+1)
	for _, m := range o.store.History(req.SessionID) {
		messages = append(messages, llm.Message{Role: string(m.Role), Content: m.Content})
	}
	messages = append(messages, llm.Message{Role: string(model.RoleUser), Content: execReq.Command})

	chatReq := &llm.ChatRequest{
		Model:       o.model,
		System:      systemPrompt(execReq.Snapshot, aiCtx),
		Messages:    messages,
		Tools:       o.exec.Tools(),
		MaxTokens:   maxTokens,
		Temperature: toolTemperature,
	}

	resp, err := o.chat(ctx, chatReq, em)
	if err != nil {
		return nil, "", err
	}

	if resp.FinishReason == llm.FinishReasonToolCalls && len(resp.ToolCalls) > 0 {
		if em != nil {
			em.Withdraw()
		}
		var result *model.ToolCallResult
		for _, call := range resp.ToolCalls {
			result = o.exec.Execute(ctx, executor.Op(call.Name), json.RawMessage(call.Arguments), execReq)
			o.countToolCall(call.Name, result)
			if !result.Success {
				break
			}
		}
		return result, "", nil
	}

	return nil, resp.Content, nil
}

func (o *Orchestrator) chat(ctx context.Context, req *llm.ChatRequest, em *Emitter) (*llm.ChatResponse, error) {
	var resp *llm.ChatResponse
	err := llm.Retry(ctx, o.policy, func(ctx context.Context) error {
		start := time.Now()
		var err error
		if em != nil {
			resp, err = o.client.ChatStream(ctx, req, em.Write)
		} else {
			resp, err = o.client.Chat(ctx, req)
		}
		status := "ok"
		if err != nil {
			class := llm.Classify(err)
			status = string(class)
			metrics.LLMRetriesTotal.WithLabelValues(string(class)).Inc()
			if em != nil {
				em.Withdraw()
			}
		}
		tokensIn, tokensOut := 0, 0
		if resp != nil {
			tokensIn, tokensOut = resp.TokensIn, resp.TokensOut
		}
		metrics.RecordLLMCall(o.client.Name(), status, time.Since(start).Seconds(), tokensIn, tokensOut)
		return err
	})
	return resp, err
}

// finalize turns a tool result or free text into the terminal command result,
// persisting pending state, context, history and the audit event.
func (o *Orchestrator) finalize(ctx context.Context, req *model.CommandRequest, text string,
	result *model.ToolCallResult, freeText string, fastPath bool, start time.Time, em *Emitter) *model.CommandResult {

	if result == nil {
		if em != nil {
			if err := em.Finish(); err != nil {
				o.log.Warn("stream flush failed", zap.Error(err))
			}
		}
		out := &model.CommandResult{Success: true, Message: freeText}
		return o.record(ctx, req, text, model.OutcomeFreeText, fastPath, start, out)
	}

	switch {
	case result.Clarification != nil:
		result.Clarification.OriginalCommand = text
		o.store.SetClarification(req.SessionID, result.Clarification)
		out := &model.CommandResult{
			Message:            synthesizer.Template(result),
			NeedsClarification: result.Clarification,
		}
		return o.record(ctx, req, text, model.OutcomeClarification, fastPath, start, out)

	case result.Confirmation != nil:
		o.store.SetConfirmation(req.SessionID, result.Confirmation)
		out := &model.CommandResult{
			Message:           synthesizer.Template(result),
			NeedsConfirmation: result.Confirmation,
		}
		return o.record(ctx, req, text, model.OutcomeConfirmation, fastPath, start, out)

	case result.Err != nil:
		out := &model.CommandResult{Message: synthesizer.Template(result)}
		return o.recordWithCode(ctx, req, text, model.OutcomeError, result.Err.Code, fastPath, start, out)
	}

	if result.Data != nil && result.Data.Product != nil {
		o.store.NoteProductContext(req.SessionID, result.Data.Product.ID, result.Data.Product.Name, result.Data.Action)
	}
	out := &model.CommandResult{
		Success: true,
		Message: o.synth.Message(ctx, text, result),
		Data:    result.Data,
	}
	return o.record(ctx, req, text, model.OutcomeApplied, fastPath, start, out)
}

// record is the single exit point: history, audit event and metrics.
// Pending outcomes stay out of history; the original command is replayed
// once the user resolves them.
func (o *Orchestrator) record(ctx context.Context, req *model.CommandRequest, text string,
	outcome model.OutcomeType, fastPath bool, start time.Time, out *model.CommandResult) *model.CommandResult {
	return o.recordWithCode(ctx, req, text, outcome, "", fastPath, start, out)
}

func (o *Orchestrator) recordWithCode(ctx context.Context, req *model.CommandRequest, text string,
	outcome model.OutcomeType, errCode string, fastPath bool, start time.Time, out *model.CommandResult) *model.CommandResult {

	terminal := outcome == model.OutcomeApplied || outcome == model.OutcomeFreeText ||
		outcome == model.OutcomeError || outcome == model.OutcomeRejected
	if terminal && text != "" {
		o.store.AppendHistory(req.SessionID, model.RoleUser, text)
		o.store.AppendHistory(req.SessionID, model.RoleAssistant, out.Message)
	}

	event := &model.CommandEvent{
		ID:        uuid.NewString(),
		ShopID:    req.ShopID,
		SessionID: req.SessionID,
		Outcome:   outcome,
		Command:   text,
		FastPath:  fastPath,
		CreatedAt: time.Now(),
	}
	if out.Data != nil {
		event.Action = out.Data.Action
	}
	event.ErrorCode = errCode
	o.events.Publish(ctx, event)

	metrics.RecordCommand(string(outcome), fastPath, time.Since(start).Seconds())
	return out
}

func (o *Orchestrator) countToolCall(operation string, result *model.ToolCallResult) {
	status := "ok"
	if result.Err != nil {
		status = "error"
	}
	metrics.ToolCallsTotal.WithLabelValues(operation, status).Inc()
}

func (o *Orchestrator) loadSnapshot(ctx context.Context, req *model.CommandRequest) (*model.Snapshot, error) {
	snapshot := &model.Snapshot{ShopID: req.ShopID, ShopName: req.ShopName, Products: req.Products}
	if req.Products != nil {
		return snapshot, nil
	}

	start := time.Now()
	products, err := o.api.ListProducts(ctx, req.ShopID)
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.CatalogCallDuration.WithLabelValues("list_products", status).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	snapshot.Products = products
	return snapshot, nil
}
