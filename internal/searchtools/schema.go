package searchtools

const (
	searchDescription = "Search the web using Exa's neural or keyword search for research papers and articles. " +
		"Use neural search for semantic understanding and keyword search for exact term matching."
	getContentsDescription = "Get full content and metadata from specific URLs or search result IDs. " +
		"Useful for deep-diving into specific papers after an initial search."
	findSimilarDescription = "Find papers and articles similar to a given URL. " +
		"Useful for exploring related work after finding an interesting paper."
)

func prop(typ, description string) map[string]interface{} {
	return map[string]interface{}{"type": typ, "description": description}
}

func stringList(description string) map[string]interface{} {
	p := prop("array", description)
	p["items"] = map[string]interface{}{"type": "string"}
	return p
}

func searchSchema() map[string]interface{} {
	searchType := prop("string", "Search type: 'neural' for semantic search (recommended for research), 'keyword' for exact term matching")
	searchType["enum"] = []string{"neural", "keyword"}
	searchType["default"] = "neural"

	numResults := prop("integer", "Number of results to return (1-20)")
	numResults["minimum"], numResults["maximum"], numResults["default"] = 1, maxNumResults, defaultNumResults

	autoprompt := prop("boolean", "Let Exa optimize the search query automatically (recommended for neural search)")
	autoprompt["default"] = true

	includeText := prop("boolean", "Include snippets of text from the results")
	includeText["default"] = false

	textLength := prop("integer", "Number of words to include in text snippets (if include_text is true)")
	textLength["minimum"], textLength["maximum"] = 50, 500

	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query":                prop("string", "The search query. For neural search, use natural language. For keyword search, you can use operators like AND, OR, quotes for exact phrases."),
			"type":                 searchType,
			"num_results":          numResults,
			"include_domains":      stringList("Only include results from these domains (e.g., ['arxiv.org'])"),
			"exclude_domains":      stringList("Exclude results from these domains"),
			"start_published_date": prop("string", "Only include results published after this date (ISO 8601 format: YYYY-MM-DD)"),
			"end_published_date":   prop("string", "Only include results published before this date (ISO 8601 format: YYYY-MM-DD)"),
			"use_autoprompt":       autoprompt,
			"include_text":         includeText,
			"text_length_words":    textLength,
		},
		"required": []string{"query"},
	}
}

func getContentsSchema() map[string]interface{} {
	ids := stringList("Result IDs or URLs to fetch content from (maximum 10 at once)")
	ids["minItems"], ids["maxItems"] = 1, maxContentIDs

	textLength := prop("integer", "Number of words to retrieve from each document")
	textLength["minimum"], textLength["maximum"], textLength["default"] = 100, 2000, defaultContentWords

	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"ids":               ids,
			"text_length_words": textLength,
		},
		"required": []string{"ids"},
	}
}

func findSimilarSchema() map[string]interface{} {
	u := prop("string", "URL of the paper/article to find similar content for")
	u["format"] = "uri"

	numResults := prop("integer", "Number of similar results to return")
	numResults["minimum"], numResults["maximum"], numResults["default"] = 1, maxNumResults, defaultNumResults

	exclude := prop("boolean", "Whether to exclude results from the same domain as the input URL")
	exclude["default"] = false

	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"url":                   u,
			"num_results":           numResults,
			"exclude_source_domain": exclude,
		},
		"required": []string{"url"},
	}
}
