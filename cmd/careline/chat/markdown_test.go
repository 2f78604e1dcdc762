package chatcmder

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = DescribeTable("looksLikeMarkdown",
	func(content string, want bool) {
		Expect(looksLikeMarkdown(content)).To(Equal(want))
	},
	Entry("plain text", "Take it with food.", false),
	Entry("bold", "Take it **with** food.", true),
	Entry("inline code", "Run `careline auth` first.", true),
	Entry("heading", "# Dosage\nOne tablet.", true),
	Entry("list", "Options:\n- rest\n- water", true),
	Entry("hyphenated word", "A well-known side effect.", false),
)
