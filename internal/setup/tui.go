package setup

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"github.com/loyaltyx/demoledger/internal/domain"
	"github.com/loyaltyx/demoledger/internal/services/ledger"
	"github.com/loyaltyx/demoledger/internal/services/reconciler"
)

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}
	alert     = lipgloss.AdaptiveColor{Light: "#D94F4F", Dark: "#FF6B6B"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(1, 2).
			Bold(true).
			MarginBottom(1)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			Padding(1)

	okStyle  = lipgloss.NewStyle().Foreground(special)
	errStyle = lipgloss.NewStyle().Foreground(alert)
)

const (
	actionView    = "view"
	actionEnable  = "enable"
	actionDisable = "disable"
	actionReset   = "reset"
	actionDeposit = "deposit"
	actionWith    = "withdraw"
	actionMint    = "mint"
	actionRedeem  = "redeem"
	actionStake   = "stake"
	actionUnstake = "unstake"
	actionQuit    = "quit"
)

// RunTUI launches the interactive demo console. It loops until the user
// quits or the context is cancelled.
func RunTUI(ctx context.Context, svc *ledger.Service, demo *reconciler.Reconciler) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		fmt.Print("\033[H\033[2J") // Clear screen
		fmt.Println(headerStyle.Render("LOYALTYX DEMO LEDGER"))
		fmt.Println(boxStyle.Render(renderPortfolio(svc, demo)))

		var action string
		err := huh.NewForm(
			huh.NewGroup(
				huh.NewSelect[string]().
					Title("What would you like to do?").
					Options(actionOptions(demo.Status().State)...).
					Value(&action),
			),
		).Run()
		if err != nil {
			return err
		}

		if action == actionQuit {
			return nil
		}

		if msg, err := runAction(ctx, svc, demo, action); err != nil {
			fmt.Println(errStyle.Render("✗ " + err.Error()))
			pause()
		} else if msg != "" {
			fmt.Println(okStyle.Render("✓ " + msg))
			pause()
		}
	}
}

func actionOptions(state reconciler.State) []huh.Option[string] {
	opts := []huh.Option[string]{
		huh.NewOption("View portfolio", actionView),
	}
	if state == reconciler.StateActive {
		opts = append(opts,
			huh.NewOption("Deposit points into yield", actionDeposit),
			huh.NewOption("Withdraw a yield position", actionWith),
			huh.NewOption("Mint LUSD", actionMint),
			huh.NewOption("Redeem LUSD", actionRedeem),
			huh.NewOption("Stake PFI tokens", actionStake),
			huh.NewOption("Unstake PFI tokens", actionUnstake),
			huh.NewOption("Reset demo account", actionReset),
			huh.NewOption("Exit demo mode", actionDisable),
		)
	} else {
		opts = append(opts, huh.NewOption("Enable demo mode", actionEnable))
	}
	return append(opts, huh.NewOption("Quit", actionQuit))
}

func runAction(ctx context.Context, svc *ledger.Service, demo *reconciler.Reconciler, action string) (string, error) {
	switch action {
	case actionView:
		return "", nil
	case actionEnable:
		if err := demo.EnableDemoMode(ctx); err != nil {
			return "", err
		}
		return "demo mode enabled", nil
	case actionDisable:
		if err := demo.DisableDemoMode(ctx); err != nil {
			return "", err
		}
		return "demo mode disabled", nil
	case actionReset:
		if err := demo.Reset(ctx); err != nil {
			return "", err
		}
		return "demo account reset", nil
	case actionDeposit:
		return deposit(svc)
	case actionWith:
		return withdraw(svc)
	case actionMint:
		return amountAction("LUSD amount to mint", svc.MintStablecoin)
	case actionRedeem:
		return amountAction("LUSD amount to redeem", svc.RedeemStablecoin)
	case actionStake:
		return amountAction("PFI tokens to stake", svc.Stake)
	case actionUnstake:
		return amountAction("PFI tokens to unstake", svc.Unstake)
	}
	return "", fmt.Errorf("unknown action %q", action)
}

func deposit(svc *ledger.Service) (string, error) {
	var (
		protocol  string
		amountStr string
	)
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Protocol").
				Options(
					huh.NewOption("Uniswap V3", string(domain.ProtocolUniswapV3)),
					huh.NewOption("Aave V3", string(domain.ProtocolAaveV3)),
					huh.NewOption("LoyaltyUSD", string(domain.ProtocolLoyaltyUSD)),
					huh.NewOption("LoyaltyX Protocol", string(domain.ProtocolLoyaltyX)),
				).
				Value(&protocol),
			huh.NewInput().
				Title("Points to deposit").
				Value(&amountStr).
				Validate(validateAmount),
		),
	).Run()
	if err != nil {
		return "", err
	}

	amount, _ := decimal.NewFromString(amountStr)
	receipt, err := svc.DepositToYield(domain.ParseProtocol(protocol), amount)
	if err != nil {
		return "", err
	}
	return receipt.Message, nil
}

func withdraw(svc *ledger.Service) (string, error) {
	positions := svc.PositionsWithEarnings()
	if len(positions) == 0 {
		return "", fmt.Errorf("no open yield positions")
	}

	opts := make([]huh.Option[int], 0, len(positions))
	for i, p := range positions {
		label := fmt.Sprintf("%s: %s points, earned %s (opened %s)",
			p.Protocol, p.PrincipalPoints.String(), p.Earned.StringFixed(4), p.OpenedAt.Format("Jan 2 15:04"))
		opts = append(opts, huh.NewOption(label, i))
	}

	var index int
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[int]().
				Title("Position to withdraw").
				Options(opts...).
				Value(&index),
		),
	).Run()
	if err != nil {
		return "", err
	}

	receipt, err := svc.WithdrawFromYield(index)
	if err != nil {
		return "", err
	}
	return receipt.Message, nil
}

func amountAction(title string, op func(decimal.Decimal) (*ledger.Receipt, error)) (string, error) {
	var amountStr string
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title(title).
				Value(&amountStr).
				Validate(validateAmount),
		),
	).Run()
	if err != nil {
		return "", err
	}

	amount, _ := decimal.NewFromString(amountStr)
	receipt, err := op(amount)
	if err != nil {
		return "", err
	}
	return receipt.Message, nil
}

func renderPortfolio(svc *ledger.Service, demo *reconciler.Reconciler) string {
	snapshot := svc.Snapshot()
	status := demo.Status()

	out := fmt.Sprintf(
		"Points: %s\nPFI tokens: %s\nStaked: %s (rewards %s)\nCollateral: %s points\nLUSD debt: %s\n",
		snapshot.Points.String(),
		snapshot.TokenBalance.String(),
		snapshot.StakedTokens.String(),
		snapshot.StakingRewards.StringFixed(4),
		snapshot.Collateral.String(),
		snapshot.StablecoinDebt.String(),
	)

	positions := svc.PositionsWithEarnings()
	if len(positions) > 0 {
		out += "\nYield positions:\n"
		for i, p := range positions {
			out += fmt.Sprintf("  %d. %s %s %s, earned %s\n",
				i+1, p.ExchangedAmount.String(), p.Asset, p.Protocol, p.Earned.StringFixed(4))
		}
	}

	switch status.State {
	case reconciler.StateActive:
		line := fmt.Sprintf("\nDemo active as %s", status.Handle)
		if status.ExpiresAt != nil {
			line += fmt.Sprintf(", expires %s", status.ExpiresAt.Format(time.RFC822))
		}
		out += lipgloss.NewStyle().Foreground(special).Render(line)
	default:
		out += lipgloss.NewStyle().Foreground(subtle).Render("\nDemo mode is off")
	}
	return out
}

func validateAmount(s string) error {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("must be a valid number")
	}
	if !d.IsPositive() {
		return fmt.Errorf("must be greater than zero")
	}
	return nil
}

func pause() {
	time.Sleep(1500 * time.Millisecond) // small pause to read the message
}
