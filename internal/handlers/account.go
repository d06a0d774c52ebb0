package handlers

import (
	"cardpay/internal/services/account"
	"cardpay/internal/services/ledger"
	"cardpay/internal/utils"
	"cardpay/internal/utils/response"

	"github.com/gofiber/fiber/v2"
)

// AccountHandler exposes card accounts and their history.
type AccountHandler struct {
	accounts account.Service
	ledger   ledger.Service
}

func NewAccountHandler(accounts account.Service, l ledger.Service) *AccountHandler {
	return &AccountHandler{accounts: accounts, ledger: l}
}

type createAccountRequest struct {
	HolderName string `json:"holder_name" validate:"required,max=100"`
}

// Create handles POST /api/accounts.
func (h *AccountHandler) Create(c *fiber.Ctx) error {
	caller, err := utils.GetCaller(c)
	if err != nil {
		return response.FromError(c, err)
	}
	var req createAccountRequest
	if err := parseBody(c, &req); err != nil {
		return response.FromError(c, err)
	}

	acc, err := h.accounts.CreateAccount(c.UserContext(), caller, req.HolderName)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Created(c, fiber.Map{"account": acc})
}

// List handles GET /api/accounts.
func (h *AccountHandler) List(c *fiber.Ctx) error {
	caller, err := utils.GetCaller(c)
	if err != nil {
		return response.FromError(c, err)
	}
	accounts, err := h.accounts.ListAccounts(c.UserContext(), caller)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, fiber.Map{"accounts": accounts})
}

// Get handles GET /api/accounts/:id.
func (h *AccountHandler) Get(c *fiber.Ctx) error {
	caller, err := utils.GetCaller(c)
	if err != nil {
		return response.FromError(c, err)
	}
	id, err := uintParam(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}
	acc, err := h.accounts.GetAccount(c.UserContext(), caller, id)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, fiber.Map{"account": acc})
}

// Transactions handles GET /api/accounts/:id/transactions.
func (h *AccountHandler) Transactions(c *fiber.Ctx) error {
	caller, err := utils.GetCaller(c)
	if err != nil {
		return response.FromError(c, err)
	}
	id, err := uintParam(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}
	if _, err := h.accounts.GetAccount(c.UserContext(), caller, id); err != nil {
		return response.FromError(c, err)
	}

	page := utils.GetPagination(c, 1, 20)
	txs, total, err := h.ledger.ListForAccount(c.UserContext(), id, page.Offset, page.Limit)
	if err != nil {
		return response.FromError(c, err)
	}
	page.SetTotal(total)
	return response.Success(c, fiber.Map{"transactions": txs, "pagination": page})
}

type blockAccountRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// Block handles POST /api/admin/accounts/:id/block.
func (h *AccountHandler) Block(c *fiber.Ctx) error {
	caller, err := utils.GetCaller(c)
	if err != nil {
		return response.FromError(c, err)
	}
	id, err := uintParam(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}
	var req blockAccountRequest
	if err := parseBody(c, &req); err != nil {
		return response.FromError(c, err)
	}
	acc, err := h.accounts.BlockAccount(c.UserContext(), caller, id, req.Reason)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, fiber.Map{"account": acc})
}

// Activate handles POST /api/admin/accounts/:id/activate.
func (h *AccountHandler) Activate(c *fiber.Ctx) error {
	caller, err := utils.GetCaller(c)
	if err != nil {
		return response.FromError(c, err)
	}
	id, err := uintParam(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}
	acc, err := h.accounts.ActivateAccount(c.UserContext(), caller, id)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, fiber.Map{"account": acc})
}
