package request

type CreateTransactionRequest struct {
	ChainID         string   `json:"chainId" binding:"required,hex_chain_id"`
	ContractAddress string   `json:"contractAddress" binding:"required,evm_address"`
	Method          string   `json:"method" binding:"required,max=255"`
	Args            []string `json:"args" binding:"max=32,dive,max=1024"`
	UserAddress     string   `json:"userAddress" binding:"required,evm_address"`
}

type UserTransactionsRequest struct {
	UserAddress string `uri:"userAddress" binding:"required,evm_address"`
}

type TransactionIDRequest struct {
	ID string `uri:"id" binding:"required,uuid"`
}

// SubscribeRequest websocket 订阅参数
type SubscribeRequest struct {
	UserAddress string `form:"userAddress" binding:"required,evm_address"`
}
