package controllers

import (
	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"

	"github.com/deskmate/deskmate/internal/managers"
)

// ChatController runs conversational turns through the assistant.
type ChatController struct {
	assistant *managers.AssistantManager
}

type ChatControllerDependencies struct {
	Assistant *managers.AssistantManager
}

func NewChatController(deps ChatControllerDependencies) *ChatController {
	return &ChatController{assistant: deps.Assistant}
}

type ChatRequest struct {
	ConversationID string `json:"conversation_id"`
	Message        string `json:"message"`
}

type ChatResponse struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	Content        string `json:"content"`
	FinishReason   string `json:"finish_reason"`
	StepCount      int    `json:"step_count"`
}

func (c *ChatController) RunTurn(ctx fiber.Ctx) error {
	var req ChatRequest

	if err := ctx.Bind().Body(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	if req.Message == "" {
		return fiber.NewError(fiber.StatusBadRequest, "Message is required")
	}

	result, err := c.assistant.RunTurn(ctx.RequestCtx(), managers.RunTurnParams{
		ConversationID: req.ConversationID,
		UserMessage:    req.Message,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to run chat turn")
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to run chat turn")
	}

	return ctx.JSON(ChatResponse{
		ConversationID: result.ConversationID,
		MessageID:      result.Message.ID,
		Content:        result.Message.Content,
		FinishReason:   result.FinishReason,
		StepCount:      result.StepCount,
	})
}
