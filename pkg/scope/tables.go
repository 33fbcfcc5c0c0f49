package scope

// Table lists, per scope kind, the grammar node types that delimit it.
type Table map[Kind][]string

// tables holds the node types of the built-in grammars. Parent, Global and
// Codebase need no entry.
var tables = map[string]Table{
	"java": {
		Statement: {
			"expression_statement", "local_variable_declaration", "if_statement", "while_statement",
			"for_statement", "enhanced_for_statement", "do_statement", "return_statement",
			"try_statement", "try_with_resources_statement", "throw_statement", "switch_expression",
			"labeled_statement", "yield_statement", "synchronized_statement", "field_declaration",
		},
		Block:  {"block", "constructor_body", "switch_block_statement_group"},
		Method: {"method_declaration", "constructor_declaration", "lambda_expression"},
		Class: {
			"class_declaration", "interface_declaration", "enum_declaration",
			"record_declaration", "annotation_type_declaration",
		},
	},
	"kotlin": {
		Statement: {
			"property_declaration", "assignment", "for_statement", "while_statement",
			"do_while_statement", "jump_expression",
		},
		Block:  {"statements", "control_structure_body", "function_body"},
		Method: {"function_declaration", "secondary_constructor", "anonymous_initializer", "lambda_literal"},
		Class:  {"class_declaration", "object_declaration", "companion_object"},
	},
	"go": {
		Statement: {
			"expression_statement", "short_var_declaration", "var_declaration", "const_declaration",
			"assignment_statement", "if_statement", "for_statement", "return_statement",
			"go_statement", "defer_statement", "inc_statement", "dec_statement",
			"expression_switch_statement", "type_switch_statement", "select_statement", "send_statement",
		},
		Block:  {"block"},
		Method: {"function_declaration", "method_declaration", "func_literal"},
		Class:  {"type_declaration"},
	},
	"swift": {
		Statement: {
			"property_declaration", "assignment", "if_statement", "guard_statement",
			"for_statement", "while_statement", "repeat_while_statement", "control_transfer_statement",
		},
		Block:  {"statements", "function_body"},
		Method: {"function_declaration", "init_declaration", "deinit_declaration", "lambda_literal"},
		Class:  {"class_declaration", "protocol_declaration"},
	},
	"typescript": ecmascript(),
	"tsx":        ecmascript(),
	"python": {
		Statement: {
			"expression_statement", "if_statement", "for_statement", "while_statement",
			"return_statement", "try_statement", "with_statement", "assert_statement",
			"raise_statement", "pass_statement", "delete_statement",
			"import_statement", "import_from_statement",
		},
		Block:  {"block"},
		Method: {"function_definition", "lambda"},
		Class:  {"class_definition"},
	},
}

func ecmascript() Table {
	return Table{
		Statement: {
			"expression_statement", "lexical_declaration", "variable_declaration", "if_statement",
			"for_statement", "for_in_statement", "while_statement", "do_statement",
			"return_statement", "throw_statement", "try_statement", "switch_statement",
		},
		Block: {"statement_block"},
		Method: {
			"function_declaration", "method_definition", "arrow_function",
			"function_expression", "generator_function_declaration",
		},
		Class: {"class_declaration", "class", "abstract_class_declaration", "interface_declaration"},
	}
}

// TableFor returns the scope table of a built-in language, or nil.
func TableFor(language string) Table {
	return tables[language]
}
