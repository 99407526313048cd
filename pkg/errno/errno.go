package errno

// Errno defines the error code logic
type Errno struct {
	Code    int
	Message string
}

func (e Errno) Error() string {
	return e.Message
}

// WithMessage 返回带具体信息的副本，错误码不变
func (e Errno) WithMessage(msg string) Errno {
	return Errno{Code: e.Code, Message: e.Message + ": " + msg}
}

// Decode tries to convert an error to Errno
func Decode(err error) (int, string) {
	if err == nil {
		return OK.Code, OK.Message
	}

	switch typed := err.(type) {
	case *Errno:
		return typed.Code, typed.Message
	case Errno:
		return typed.Code, typed.Message
	default:
		return InternalServerError.Code, err.Error()
	}
}

// Common Errors
var (
	OK                  = Errno{Code: 0, Message: "Success"}
	InternalServerError = Errno{Code: 10001, Message: "Internal server error"}
	ErrBind             = Errno{Code: 10002, Message: "Error occurred while binding the request body to the struct"}
	ErrDatabase         = Errno{Code: 10004, Message: "Database error"}
	ErrQueue            = Errno{Code: 10005, Message: "Queue error"}
)

// Business Errors (20000+)
var (
	ErrUnsupportedChain    = Errno{Code: 20301, Message: "Unsupported chain"}
	ErrTransactionNotFound = Errno{Code: 20302, Message: "Transaction not found"}
	ErrInvalidAddress      = Errno{Code: 20303, Message: "Invalid address"}
)
