package setup

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// prompter reads answers for the wizard, one line per question.
type prompter struct {
	scanner *bufio.Scanner
	out     io.Writer
	done    bool
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{scanner: bufio.NewScanner(in), out: out}
}

// ask prints a prompt and reads one line. At end of input it returns "".
func (p *prompter) ask(prompt string) string {
	fmt.Fprintf(p.out, "%s ", prompt)
	if p.scanner.Scan() {
		return strings.TrimSpace(p.scanner.Text())
	}
	p.done = true
	fmt.Fprintln(p.out)
	return ""
}

// askDefault shows the default in brackets and returns it for an empty answer.
func (p *prompter) askDefault(prompt, def string) string {
	if def == "" {
		return p.ask(prompt + ":")
	}
	if answer := p.ask(fmt.Sprintf("%s [%s]:", prompt, def)); answer != "" {
		return answer
	}
	return def
}

// askRequired repeats the question until a non-empty answer is given or the
// input ends.
func (p *prompter) askRequired(prompt, def string) (string, bool) {
	for {
		answer := p.askDefault(prompt, def)
		if answer != "" {
			return answer, true
		}
		if !p.more() {
			return "", false
		}
		fmt.Fprintln(p.out, "  A value is required.")
	}
}

// askPositive reads a positive integer, falling back to def.
func (p *prompter) askPositive(prompt string, def int) int {
	for {
		answer := p.askDefault(prompt, strconv.Itoa(def))
		n, err := strconv.Atoi(answer)
		if err == nil && n > 0 {
			return n
		}
		if !p.more() {
			return def
		}
		fmt.Fprintln(p.out, "  Please enter a positive number.")
	}
}

func (p *prompter) askYesNo(prompt string, defaultYes bool) bool {
	suffix := "[y/N]"
	if defaultYes {
		suffix = "[Y/n]"
	}
	switch strings.ToLower(p.ask(fmt.Sprintf("%s %s:", prompt, suffix))) {
	case "y", "yes":
		return true
	case "n", "no":
		return false
	default:
		return defaultYes
	}
}

// askChoice lists numbered options and returns the 0-based index picked.
// An empty answer picks def.
func (p *prompter) askChoice(prompt string, options []string, def int) int {
	fmt.Fprintln(p.out, prompt)
	for i, opt := range options {
		fmt.Fprintf(p.out, "  [%d] %s\n", i+1, opt)
	}
	for {
		answer := p.askDefault("Choice", strconv.Itoa(def+1))
		n, err := strconv.Atoi(answer)
		if err == nil && n >= 1 && n <= len(options) {
			return n - 1
		}
		if !p.more() {
			return def
		}
		fmt.Fprintf(p.out, "  Please enter a number between 1 and %d.\n", len(options))
	}
}

// askMultiSelect lists numbered options and reads a comma-separated
// selection. An empty answer or "a" selects everything.
func (p *prompter) askMultiSelect(prompt string, options []string) []int {
	fmt.Fprintln(p.out, prompt)
	for i, opt := range options {
		fmt.Fprintf(p.out, "  [%d] %s\n", i+1, opt)
	}
	all := make([]int, len(options))
	for i := range options {
		all[i] = i
	}
	for {
		answer := strings.ToLower(p.ask("Selection (comma-separated, empty for all):"))
		if answer == "" || answer == "a" {
			return all
		}
		var picked []int
		seen := make(map[int]bool)
		valid := true
		for _, part := range strings.Split(answer, ",") {
			n, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil || n < 1 || n > len(options) {
				valid = false
				break
			}
			if !seen[n-1] {
				seen[n-1] = true
				picked = append(picked, n-1)
			}
		}
		if valid {
			return picked
		}
		if !p.more() {
			return all
		}
		fmt.Fprintf(p.out, "  Enter numbers between 1 and %d, separated by commas.\n", len(options))
	}
}

// more reports whether further answers can still be read.
func (p *prompter) more() bool {
	return !p.done
}
