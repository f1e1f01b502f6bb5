package serverutils

import (
	"log"

	"ai-docquery-be/pkg/agent/agenterr"

	"github.com/gofiber/fiber/v2"
)

// ErrorHandlerMiddleware maps agent error kinds onto HTTP statuses.
// Callers get a readable explanation with a suggested next step; the
// internal error string only goes to the log.
func ErrorHandlerMiddleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}

		if fe, ok := err.(*fiber.Error); ok {
			return ctx.Status(fe.Code).JSON(ErrorResponse(fe.Message))
		}

		kind := agenterr.KindOf(err)
		log.Printf("[ERROR] %s %s: %v", ctx.Method(), ctx.Path(), err)
		return ctx.Status(statusForKind(kind)).JSON(ErrorResponse(messageForKind(kind)))
	}
}

func statusForKind(kind agenterr.Kind) int {
	switch kind {
	case agenterr.KindClassification, agenterr.KindQueryGeneration:
		return fiber.StatusUnprocessableEntity
	case agenterr.KindEvidenceMissing:
		return fiber.StatusNotFound
	case agenterr.KindTimeout:
		return fiber.StatusGatewayTimeout
	case agenterr.KindQueryExecution, agenterr.KindRetrieval:
		return fiber.StatusBadGateway
	case agenterr.KindConfiguration:
		return fiber.StatusInternalServerError
	}
	return fiber.StatusInternalServerError
}

// messageForKind phrases the failure for the caller: what went wrong
// plus what to try next.
func messageForKind(kind agenterr.Kind) string {
	switch kind {
	case agenterr.KindClassification:
		return "We could not understand your question. Please rephrase it in simpler terms."
	case agenterr.KindQueryGeneration:
		return "We could not turn your question into a data query. Please rephrase it or name the fields you are interested in."
	case agenterr.KindEvidenceMissing:
		return "No information was found for your question. Please rephrase it or add more specific details."
	case agenterr.KindTimeout:
		return "The request took too long to process. Please try again in a moment."
	case agenterr.KindQueryExecution, agenterr.KindRetrieval:
		return "We could not reach your data right now. Please try again shortly."
	}
	return "Something went wrong on our side. Please try again later."
}
