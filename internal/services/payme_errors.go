package services

import "encoding/json"

// PaymeErrorInfo describes a Payme-compatible error.
type PaymeErrorInfo struct {
	Name    string
	Code    int
	Message map[string]string
}

var (
	PaymeErrorInvalidAmount = PaymeErrorInfo{
		Name: "InvalidAmount",
		Code: -31001,
		Message: map[string]string{
			"uz": "Noto'g'ri summa",
			"ru": "Неверная сумма",
			"en": "Invalid amount",
		},
	}
	PaymeErrorTransactionNotFound = PaymeErrorInfo{
		Name: "TransactionNotFound",
		Code: -31003,
		Message: map[string]string{
			"uz": "Tranzaksiya topilmadi",
			"ru": "Транзакция не найдена",
			"en": "Transaction not found",
		},
	}
	PaymeErrorInvalidState = PaymeErrorInfo{
		Name: "InvalidState",
		Code: -31008,
		Message: map[string]string{
			"uz": "Tranzaksiya holati noto'g'ri",
			"ru": "Неверное состояние транзакции",
			"en": "Invalid transaction state",
		},
	}
	PaymeErrorPaymentNotFound = PaymeErrorInfo{
		Name: "PaymentNotFound",
		Code: -31050,
		Message: map[string]string{
			"uz": "To'lov topilmadi",
			"ru": "Платеж не найден",
			"en": "Payment not found",
		},
	}
	PaymeErrorAlreadyProcessed = PaymeErrorInfo{
		Name: "AlreadyProcessed",
		Code: -31051,
		Message: map[string]string{
			"uz": "To'lov allaqachon amalga oshirilgan",
			"ru": "Платеж уже обработан",
			"en": "Payment already processed",
		},
	}
	PaymeErrorInternal = PaymeErrorInfo{
		Name: "InternalError",
		Code: -32400,
		Message: map[string]string{
			"uz": "Ichki xatolik",
			"ru": "Внутренняя ошибка",
			"en": "Internal error",
		},
	}
	PaymeErrorInvalidAuthorization = PaymeErrorInfo{
		Name: "InvalidAuthorization",
		Code: -32504,
		Message: map[string]string{
			"uz": "Avtorizatsiya yaroqsiz",
			"ru": "Авторизация недействительна",
			"en": "Authorization invalid",
		},
	}
	PaymeErrorMethodNotFound = PaymeErrorInfo{
		Name: "MethodNotFound",
		Code: -32601,
		Message: map[string]string{
			"uz": "Metod topilmadi",
			"ru": "Метод не найден",
			"en": "Method not found",
		},
	}
	PaymeErrorInvalidRequest = PaymeErrorInfo{
		Name: "InvalidRequest",
		Code: -32600,
		Message: map[string]string{
			"uz": "So'rov noto'g'ri",
			"ru": "Неверный запрос",
			"en": "Invalid request",
		},
	}
	PaymeErrorParse = PaymeErrorInfo{
		Name: "ParseError",
		Code: -32700,
		Message: map[string]string{
			"uz": "JSON tahlil xatosi",
			"ru": "Ошибка разбора JSON",
			"en": "Parse error",
		},
	}
)

// TransactionError is a structured Payme transaction error.
type TransactionError struct {
	Info PaymeErrorInfo
	Data any
}

func (e *TransactionError) Error() string {
	return e.Info.Name
}

// RPCError is the error member of a Merchant API response.
type RPCError struct {
	Code    int               `json:"code"`
	Message map[string]string `json:"message"`
	Data    any               `json:"data,omitempty"`
}

// RPCResponse is the envelope every Merchant API call is answered with.
// ID echoes the request id verbatim; a missing id is rendered as null.
type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// NewRPCResult wraps a successful result.
func NewRPCResult(id json.RawMessage, result any) RPCResponse {
	return RPCResponse{JSONRPC: "2.0", ID: id, Result: result}
}

// NewRPCError wraps a transaction error.
func NewRPCError(id json.RawMessage, err *TransactionError) RPCResponse {
	return RPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &RPCError{
			Code: err.Info.Code,
			Message: map[string]string{
				"uz": err.Info.Message["uz"],
				"ru": err.Info.Message["ru"],
				"en": err.Info.Message["en"],
			},
			Data: err.Data,
		},
	}
}

// NewTransactionError builds a TransactionError for info.
func NewTransactionError(info PaymeErrorInfo) *TransactionError {
	return &TransactionError{Info: info}
}
