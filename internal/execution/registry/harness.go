package registry

import "gradex/internal/execution/model"

// Harness contract: every program reads the test case input as JSON on
// stdin and emits the output as JSON on the last stdout line.
//
// For javascript and python a generated entry file wraps the candidate
// code: the code either defines a `solution(input)` function or, for
// javascript, may be a bare function body. Java and Go submissions are
// complete programs and run without a harness.

const jsHarness = `'use strict';
const fs = require('fs');

const src = fs.readFileSync('solution.js', 'utf8');
const raw = fs.readFileSync(0, 'utf8');
const input = raw.trim() === '' ? null : JSON.parse(raw);

const runner = new Function('input',
  src + '\n;if (typeof solution === "function") { return solution(input); }');
const output = runner(input);
console.log(JSON.stringify(output === undefined ? null : output));
`

const pyHarness = `import json
import sys

with open('solution.py') as f:
    src = f.read()

ns = {}
exec(compile(src, 'solution.py', 'exec'), ns)

raw = sys.stdin.read()
data = json.loads(raw) if raw.strip() else None

fn = ns.get('solution')
if not callable(fn):
    raise RuntimeError('no solution(input) function defined')
print(json.dumps(fn(data)))
`

// HarnessSource returns the generated entry file content for a language,
// or "" when the language runs the candidate file directly.
func HarnessSource(lang model.Language) string {
	switch lang {
	case model.LanguageJavaScript:
		return jsHarness
	case model.LanguagePython:
		return pyHarness
	default:
		return ""
	}
}
