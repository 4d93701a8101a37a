package rpc

// RPCError represents a JSON-RPC error response
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return e.Message
}

// TokenAmount represents token balance information
type TokenAmount struct {
	Amount   string `json:"amount"` // raw integer, base units
	Decimals int    `json:"decimals"`
}

// TokenBalance represents a pre/post token balance entry
type TokenBalance struct {
	AccountIndex  int         `json:"accountIndex"`
	Mint          string      `json:"mint"`
	Owner         string      `json:"owner"`
	ProgramID     string      `json:"programId"`
	UITokenAmount TokenAmount `json:"uiTokenAmount"`
}

// TransactionMeta contains metadata about a confirmed transaction
type TransactionMeta struct {
	Err               interface{}    `json:"err"`
	Fee               uint64         `json:"fee"`
	PreBalances       []uint64       `json:"preBalances"`
	PostBalances      []uint64       `json:"postBalances"`
	PreTokenBalances  []TokenBalance `json:"preTokenBalances"`
	PostTokenBalances []TokenBalance `json:"postTokenBalances"`
	LogMessages       []string       `json:"logMessages"`
}

// AccountKey represents an account in a transaction message
type AccountKey struct {
	Pubkey   string `json:"pubkey"`
	Signer   bool   `json:"signer"`
	Writable bool   `json:"writable"`
}

// Instruction is a raw instruction entry from a jsonParsed transaction.
// Parsed payloads vary per program; the derivation engine only needs the
// program ids.
type Instruction struct {
	Program   string `json:"program,omitempty"`
	ProgramID string `json:"programId"`
}

// TransactionMessage contains the transaction message
type TransactionMessage struct {
	AccountKeys  []AccountKey  `json:"accountKeys"`
	Instructions []Instruction `json:"instructions"`
}

// Transaction represents a parsed transaction
type Transaction struct {
	Signatures []string           `json:"signatures"`
	Message    TransactionMessage `json:"message"`
}

// TransactionResult contains the full confirmed transaction record
type TransactionResult struct {
	Slot        uint64           `json:"slot"`
	BlockTime   *int64           `json:"blockTime"`
	Meta        *TransactionMeta `json:"meta"`
	Transaction *Transaction     `json:"transaction"`
}

// TransactionResponse is the response from getTransaction
type TransactionResponse struct {
	Result *TransactionResult `json:"result"`
	Error  *RPCError          `json:"error"`
}

// AccountInfoValue is the value object of getAccountInfo
type AccountInfoValue struct {
	Owner    string `json:"owner"`
	Lamports uint64 `json:"lamports"`
}

// AccountInfoResponse is the response from getAccountInfo
type AccountInfoResponse struct {
	Result struct {
		Value *AccountInfoValue `json:"value"`
	} `json:"result"`
	Error *RPCError `json:"error"`
}

// TokenAccountsResponse is the response from getTokenAccountsByOwner with
// jsonParsed encoding.
type TokenAccountsResponse struct {
	Result struct {
		Value []struct {
			Pubkey  string `json:"pubkey"`
			Account struct {
				Data struct {
					Parsed struct {
						Info struct {
							TokenAmount TokenAmount `json:"tokenAmount"`
						} `json:"info"`
					} `json:"parsed"`
				} `json:"data"`
			} `json:"account"`
		} `json:"value"`
	} `json:"result"`
	Error *RPCError `json:"error"`
}
